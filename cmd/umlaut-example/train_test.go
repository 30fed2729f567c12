// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/callback"
)

func offlineCallback(t *testing.T, net *network) *callback.Callback {
	t.Helper()
	cb, err := callback.New(t.Context(), net, callback.Config{
		Offline:            true,
		NoSourceReferences: true,
		Report:             io.Discard,
	})
	if err != nil {
		t.Fatalf("callback.New: %v", err)
	}
	return cb
}

func reportedKinds(found []anomaly.Anomaly) []anomaly.Kind {
	kinds := make([]anomaly.Kind, 0, len(found))
	for _, item := range found {
		if !slices.Contains(kinds, item.Kind) {
			kinds = append(kinds, item.Kind)
		}
	}
	return kinds
}

var plantedKinds = map[string]anomaly.Kind{
	bugUnnormalized: anomaly.InputNormalization,
	bugLinear:       anomaly.MissingActivations,
	bugLogits:       anomaly.NoSoftmax,
	bugHighRate:     anomaly.LearningRateHigh,
	bugNaN:          anomaly.NaNInput,
}

func TestPlantedBugsAreReported(t *testing.T) {
	for bug, kind := range plantedKinds {
		t.Run(bug, func(t *testing.T) {
			trainer := newTrainer(runConfig{Epochs: nanEpoch + 1, Seed: 7, Bugs: []string{bug}})
			found, err := trainer.run(t.Context(), offlineCallback(t, trainer.net))
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if kinds := reportedKinds(found); !slices.Contains(kinds, kind) {
				t.Fatalf("reported %v, want %s", kinds, kind)
			}
		})
	}
}

func TestCleanRunReportsNoPlantedKinds(t *testing.T) {
	var progress bytes.Buffer
	trainer := newTrainer(runConfig{Epochs: nanEpoch + 1, Seed: 7, Progress: &progress})
	found, err := trainer.run(t.Context(), offlineCallback(t, trainer.net))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	kinds := reportedKinds(found)
	for bug, kind := range plantedKinds {
		if slices.Contains(kinds, kind) {
			t.Errorf("clean run reported %s (planted by %q)", kind, bug)
		}
	}
	if lines := strings.Count(progress.String(), "\n"); lines != nanEpoch+1 {
		t.Fatalf("progress has %d lines, want one per epoch:\n%s", lines, progress.String())
	}
}

func TestNetworkLearns(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	train, validation := blobs(rng, sampleCount, blobSpread, 1).split(validationShare)
	net := newNetwork(rng, 2, hiddenUnits, len(blobCenters), 0.5)

	_, before := net.evaluate(validation)
	for range 20 {
		for start := 0; start < len(train.y); start += batchSize {
			indices := make([]int, 0, batchSize)
			for i := start; i < min(start+batchSize, len(train.y)); i++ {
				indices = append(indices, i)
			}
			x, labels := train.batch(indices)
			if _, err := net.Forward(t.Context(), x); err != nil {
				t.Fatalf("Forward: %v", err)
			}
			net.step(labels)
		}
	}
	_, after := net.evaluate(validation)
	if after < 0.7 || after <= before {
		t.Fatalf("validation accuracy %.3f -> %.3f, want above 0.7", before, after)
	}
}

func TestNetworkRejectsWrongShape(t *testing.T) {
	net := newNetwork(rand.New(rand.NewPCG(1, 1)), 2, 4, 3, sensibleRate)
	x, _ := blobs(rand.New(rand.NewPCG(1, 1)), 3, blobSpread, 1).batch([]int{0, 1, 2})
	x.Shape = []int{2, 3}
	if _, err := net.Forward(t.Context(), x); err == nil {
		t.Fatal("Forward accepted a [2 3] input for a 2-feature network")
	}
}

func TestBlobsStayNormalized(t *testing.T) {
	data := blobs(rand.New(rand.NewPCG(9, 9)), 300, 1.0, 1)
	for _, row := range data.x {
		for _, value := range row {
			if value < -1 || value > 1 {
				t.Fatalf("feature %g outside [-1, 1]", value)
			}
		}
	}
	train, validation := data.split(validationShare)
	if len(train.y) != 240 || len(validation.y) != 60 {
		t.Fatalf("split = %d/%d, want 240/60", len(train.y), len(validation.y))
	}
}

func TestParseBugs(t *testing.T) {
	bugs, err := parseBugs([]string{"linear", " nan ", "none", ""})
	if err != nil {
		t.Fatalf("parseBugs: %v", err)
	}
	if !slices.Equal(bugs, []string{"linear", "nan"}) {
		t.Fatalf("bugs = %v, want [linear nan]", bugs)
	}
	if _, err := parseBugs([]string{"gremlins"}); err == nil {
		t.Fatal("parseBugs accepted an unknown bug")
	}
}
