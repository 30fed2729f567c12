// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"math"

	"github.com/bureau-foundation/umlaut/lib/heuristics"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

// Plot and series names used for per-epoch metrics.
const (
	PlotLoss     = "loss"
	PlotAccuracy = "acc"
	SeriesTrain  = "train"
	SeriesVal    = "val"
)

// BuildPlotUpdate derives one epoch's plot update from training logs.
// Loss is always looked for; the accuracy family only when "accuracy"
// or "acc" is present, picked the way the overconfidence check picks
// it so the chart shows the series that was judged. A "val_" counterpart is included only when
// present. Keys whose values are NaN or infinite are left out and
// returned in skipped. missingLoss reports that logs had no "loss".
func BuildPlotUpdate(epoch int, logs map[string]float64) (update telemetry.PlotUpdate, skipped []string, missingLoss bool) {
	update = telemetry.PlotUpdate{}
	add := func(plot, series, key string) {
		value, ok := logs[key]
		if !ok {
			return
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			skipped = append(skipped, key)
			return
		}
		if update[plot] == nil {
			update[plot] = make(map[string]telemetry.Point)
		}
		update[plot][series] = telemetry.Point{Epoch: epoch, Value: value}
	}

	_, hasLoss := logs["loss"]
	add(PlotLoss, SeriesTrain, "loss")
	add(PlotLoss, SeriesVal, "val_loss")

	if key, ok := heuristics.AccuracyKey(logs); ok {
		add(PlotAccuracy, SeriesTrain, key)
		add(PlotAccuracy, SeriesVal, "val_"+key)
	}
	return update, skipped, !hasLoss
}
