// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chart

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

func lossPlots() telemetry.Plots {
	plots := telemetry.Plots{}
	for epoch, value := range []float64{2.3, 1.2, 0.8, 0.9, 1.3} {
		plots.Add("loss", "train", telemetry.Point{Epoch: epoch, Value: value})
		plots.Add("loss", "val", telemetry.Point{Epoch: epoch, Value: value + 0.2})
	}
	plots.Add("acc", "train", telemetry.Point{Epoch: 0, Value: 0.4})
	return plots
}

func TestSpecsFor(t *testing.T) {
	regions := []anomaly.Region{{From: 2, To: 3}}
	specs := SpecsFor(lossPlots(), regions)
	if len(specs) != 2 || specs[0].Title != "acc" || specs[1].Title != "loss" {
		t.Fatalf("specs = %+v, want acc then loss", specs)
	}
	loss := specs[1]
	if len(loss.Series) != 2 || loss.Series[0].Name != "train" || loss.Series[1].Name != "val" {
		t.Fatalf("loss series = %+v, want train then val", loss.Series)
	}
	if len(loss.Regions) != 1 {
		t.Fatalf("loss regions = %v, want the shared region", loss.Regions)
	}
}

func TestRender(t *testing.T) {
	for _, spec := range SpecsFor(lossPlots(), []anomaly.Region{{From: 2, To: 3}, {From: 3, To: 4}}) {
		t.Run(spec.Title, func(t *testing.T) {
			spec.Width, spec.Height = 640, 320
			var buffer bytes.Buffer
			if err := Render(&buffer, spec); err != nil {
				t.Fatalf("Render: %v", err)
			}
			config, err := png.DecodeConfig(&buffer)
			if err != nil {
				t.Fatalf("output is not a PNG: %v", err)
			}
			if config.Width != 640 || config.Height != 320 {
				t.Fatalf("image is %dx%d, want 640x320", config.Width, config.Height)
			}
		})
	}
}

func TestRenderFlatSeries(t *testing.T) {
	spec := Spec{
		Title:  "loss",
		Series: []Series{{Name: "train", Points: []telemetry.Point{{Epoch: 0, Value: 1}, {Epoch: 1, Value: 1}}}},
	}
	var buffer bytes.Buffer
	if err := Render(&buffer, spec); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := png.DecodeConfig(&buffer); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
}

func TestRenderNoData(t *testing.T) {
	spec := Spec{Title: "loss", Series: []Series{{Name: "train"}}}
	err := Render(&bytes.Buffer{}, spec)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Render error = %v, want ErrNoData", err)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	plots := lossPlots()
	plots["empty"] = map[string][]telemetry.Point{"train": nil}

	paths, err := WriteFiles(dir, "run 1", SpecsFor(plots, nil))
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "run_1-acc.png"),
		filepath.Join(dir, "run_1-loss.png"),
	}
	if !slices.Equal(paths, want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		_, err = png.DecodeConfig(file)
		file.Close()
		if err != nil {
			t.Fatalf("%s is not a PNG: %v", path, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("export dir has %d entries, want 2 (no temp files left)", len(entries))
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("", "loss"); got != "loss.png" {
		t.Fatalf("FileName = %q, want loss.png", got)
	}
	if got := FileName("a/b", "val acc"); got != "a_b-val_acc.png" {
		t.Fatalf("FileName = %q, want a_b-val_acc.png", got)
	}
}
