// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
)

// MaxNameLength bounds plot and series names.
const MaxNameLength = 128

// PlotUpdate is the body of an updateSessionPlots request: one new
// point per series, grouped by plot.
//
//	{"loss": {"train": [6, 0.42], "val": [6, 0.84]}, "acc": {...}}
type PlotUpdate map[string]map[string]Point

// Validate checks names and values.
func (u PlotUpdate) Validate() error {
	if len(u) == 0 {
		return errors.New("telemetry: plot update is empty")
	}
	for plot, series := range u {
		if err := validateName("plot", plot); err != nil {
			return err
		}
		if len(series) == 0 {
			return fmt.Errorf("telemetry: plot %q has no series", plot)
		}
		for name, point := range series {
			if err := validateName("series", name); err != nil {
				return err
			}
			if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
				return fmt.Errorf("telemetry: %s.%s has non-finite value", plot, name)
			}
			if point.Epoch < 0 {
				return fmt.Errorf("telemetry: %s.%s has negative epoch %d", plot, name, point.Epoch)
			}
		}
	}
	return nil
}

// SeriesPoint flattens one entry of a PlotUpdate.
type SeriesPoint struct {
	Plot   string
	Series string
	Point  Point
}

// Points returns the update's points sorted by plot then series.
func (u PlotUpdate) Points() []SeriesPoint {
	var points []SeriesPoint
	for plot, series := range u {
		for name, point := range series {
			points = append(points, SeriesPoint{Plot: plot, Series: name, Point: point})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Plot != points[j].Plot {
			return points[i].Plot < points[j].Plot
		}
		return points[i].Series < points[j].Series
	})
	return points
}

// Plots is the read-side view of a session's series: every point in
// arrival order, grouped by plot.
type Plots map[string]map[string][]Point

// Add appends a point.
func (p Plots) Add(plot, series string, point Point) {
	if p[plot] == nil {
		p[plot] = make(map[string][]Point)
	}
	p[plot][series] = append(p[plot][series], point)
}

// AnomalyUpdate is one entry of an updateSessionErrors request.
// Epochs is required on the wire; null marks a static anomaly.
type AnomalyUpdate struct {
	Epochs    anomaly.EpochSet  `json:"epochs"`
	Remarks   string            `json:"remarks,omitempty"`
	Reference *anomaly.Location `json:"reference,omitempty"`
}

// UnmarshalJSON distinguishes an explicit null from a missing epochs
// field, and normalizes a present list into a sorted set.
func (u *AnomalyUpdate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Epochs    json.RawMessage   `json:"epochs"`
		Epoch     json.RawMessage   `json:"epoch"`
		Remarks   string            `json:"remarks"`
		Reference *anomaly.Location `json:"reference"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	field := raw.Epochs
	if field == nil {
		// Older clients send a single "epoch" instead of a list.
		field = raw.Epoch
	}
	if field == nil {
		return errors.New("telemetry: anomaly update is missing epochs")
	}

	u.Remarks = raw.Remarks
	u.Reference = raw.Reference
	u.Epochs = nil
	if string(field) == "null" {
		return nil
	}

	var elements []*int
	if err := json.Unmarshal(field, &elements); err != nil {
		var single int
		if singleErr := json.Unmarshal(field, &single); singleErr != nil {
			return fmt.Errorf("telemetry: epochs must be a list of integers or null: %w", err)
		}
		elements = []*int{&single}
	}
	list := make([]int, 0, len(elements))
	for _, epoch := range elements {
		if epoch == nil {
			return errors.New("telemetry: epochs must not contain null")
		}
		if *epoch < 0 {
			return fmt.Errorf("telemetry: negative epoch %d", *epoch)
		}
		list = append(list, *epoch)
	}
	u.Epochs = anomaly.Epochs(list...)
	return nil
}

// AnomalyUpdates is the body of an updateSessionErrors request, keyed
// by anomaly kind.
//
//	{"overfitting": {"epochs": [4]}, "no_softmax": {"epochs": null}}
type AnomalyUpdates map[string]AnomalyUpdate

// NewAnomalyUpdates builds a request body from anomalies. Records of
// the same kind are merged.
func NewAnomalyUpdates(anomalies []anomaly.Anomaly) AnomalyUpdates {
	merged := make(map[anomaly.Kind]anomaly.Anomaly, len(anomalies))
	for _, item := range anomalies {
		if existing, ok := merged[item.Kind]; ok {
			merged[item.Kind] = existing.Merge(item)
			continue
		}
		merged[item.Kind] = item
	}
	updates := make(AnomalyUpdates, len(merged))
	for kind, item := range merged {
		updates[string(kind)] = AnomalyUpdate{
			Epochs:    item.Epochs,
			Remarks:   item.Remarks,
			Reference: item.Reference,
		}
	}
	return updates
}

// Anomalies validates the kinds and returns the updates as anomalies
// sorted by kind.
func (u AnomalyUpdates) Anomalies() ([]anomaly.Anomaly, error) {
	if len(u) == 0 {
		return nil, errors.New("telemetry: anomaly update is empty")
	}
	result := make([]anomaly.Anomaly, 0, len(u))
	for name, update := range u {
		kind, err := anomaly.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		result = append(result, anomaly.Anomaly{
			Kind:      kind,
			Epochs:    update.Epochs,
			Remarks:   update.Remarks,
			Reference: update.Reference,
		})
	}
	slices.SortFunc(result, func(a, b anomaly.Anomaly) int {
		return cmp.Compare(a.Kind, b.Kind)
	})
	return result, nil
}

// Session is a row of the session listing.
type Session struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modify_timestamp"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func validateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("telemetry: empty %s name", what)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("telemetry: %s name longer than %d bytes", what, MaxNameLength)
	}
	return nil
}
