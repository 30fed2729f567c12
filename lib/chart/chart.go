// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chart

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

// Default image size in pixels.
const (
	DefaultWidth  = 960
	DefaultHeight = 480
)

// ErrNoData is returned for a spec with no points to draw.
var ErrNoData = errors.New("chart: no data points")

// Series is one named line.
type Series struct {
	Name   string
	Points []telemetry.Point
}

// Spec describes one chart.
type Spec struct {
	Title   string
	Series  []Series
	Regions []anomaly.Region

	// Width and Height default to DefaultWidth and DefaultHeight.
	Width  int
	Height int
}

var palette = []drawing.Color{
	gochart.ColorBlue,
	gochart.ColorOrange,
	gochart.ColorGreen,
	gochart.ColorRed,
	gochart.ColorAlternateGray,
}

var bandColor = drawing.ColorFromHex("f5b700").WithAlpha(80)

// SpecsFor builds one spec per plot, ordered by plot name, with every
// plot sharing the same highlighted regions.
func SpecsFor(plots telemetry.Plots, regions []anomaly.Region) []Spec {
	names := make([]string, 0, len(plots))
	for name := range plots {
		names = append(names, name)
	}
	slices.Sort(names)

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		seriesNames := make([]string, 0, len(plots[name]))
		for series := range plots[name] {
			seriesNames = append(seriesNames, series)
		}
		slices.Sort(seriesNames)

		spec := Spec{Title: name, Regions: regions}
		for _, series := range seriesNames {
			spec.Series = append(spec.Series, Series{Name: series, Points: plots[name][series]})
		}
		specs = append(specs, spec)
	}
	return specs
}

// Render draws spec to w as a PNG.
func Render(w io.Writer, spec Spec) error {
	if spec.Width <= 0 {
		spec.Width = DefaultWidth
	}
	if spec.Height <= 0 {
		spec.Height = DefaultHeight
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	var series []gochart.Series
	for i, line := range spec.Series {
		if len(line.Points) == 0 {
			continue
		}
		points := slices.SortedFunc(slices.Values(line.Points), func(a, b telemetry.Point) int {
			return cmp.Compare(a.Epoch, b.Epoch)
		})
		xs := make([]float64, len(points))
		ys := make([]float64, len(points))
		for j, point := range points {
			xs[j] = float64(point.Epoch)
			ys[j] = point.Value
			minY = min(minY, point.Value)
			maxY = max(maxY, point.Value)
		}
		style := gochart.Style{
			StrokeColor: palette[i%len(palette)],
			StrokeWidth: 2,
			DotColor:    palette[i%len(palette)],
			DotWidth:    3,
		}
		// go-chart needs two x values to compute a range.
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1)
			ys = append(ys, ys[0])
			style.DotWidth = 5
		}
		series = append(series, gochart.ContinuousSeries{Name: line.Name, XValues: xs, YValues: ys, Style: style})
	}
	if len(series) == 0 {
		return fmt.Errorf("%w: %q", ErrNoData, spec.Title)
	}

	if minY == maxY {
		minY, maxY = minY-0.5, maxY+0.5
	}
	pad := (maxY - minY) * 0.05
	yRange := &gochart.ContinuousRange{Min: minY - pad, Max: maxY + pad}

	if band, ok := bandSeries(spec.Regions, yRange.Min, yRange.Max); ok {
		// Drawn first so the data lines sit on top.
		series = append([]gochart.Series{band}, series...)
	}

	rendered := gochart.Chart{
		Title:      spec.Title,
		Width:      spec.Width,
		Height:     spec.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: "epoch"},
		YAxis:      gochart.YAxis{Name: spec.Title, Range: yRange},
		Series:     series,
	}
	rendered.Elements = []gochart.Renderable{gochart.Legend(&rendered)}
	if err := rendered.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("chart: rendering %q: %w", spec.Title, err)
	}
	return nil
}

// bandSeries traces every region as a rectangle from low to high in a
// single filled series, so the legend carries one entry for all of
// them.
func bandSeries(regions []anomaly.Region, low, high float64) (gochart.ContinuousSeries, bool) {
	if len(regions) == 0 {
		return gochart.ContinuousSeries{}, false
	}
	sorted := slices.SortedFunc(slices.Values(regions), func(a, b anomaly.Region) int {
		return cmp.Compare(a.From, b.From)
	})
	var xs, ys []float64
	for _, region := range sorted {
		from, to := float64(region.From), float64(region.To)
		xs = append(xs, from, from, to, to)
		ys = append(ys, low, high, high, low)
	}
	return gochart.ContinuousSeries{
		Name:    "highlighted",
		XValues: xs,
		YValues: ys,
		Style: gochart.Style{
			StrokeColor: drawing.ColorTransparent,
			FillColor:   bandColor,
		},
	}, true
}
