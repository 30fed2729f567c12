// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/callback"
	"github.com/bureau-foundation/umlaut/lib/heuristics"
)

// Bugs that can be planted in the example run, each of which one of
// the checks should catch.
const (
	bugUnnormalized = "unnormalized"
	bugLinear       = "linear"
	bugLogits       = "logits"
	bugHighRate     = "high-lr"
	bugNaN          = "nan"
)

var knownBugs = []string{bugUnnormalized, bugLinear, bugLogits, bugHighRate, bugNaN}

const (
	sampleCount     = 900
	validationShare = 0.2
	hiddenUnits     = 16
	batchSize       = 16
	blobSpread      = 0.3

	// sensibleRate is at the upper end of what the learning-rate check
	// accepts; highRate is well past it.
	sensibleRate = 0.01
	highRate     = 0.5

	// nanEpoch is the first epoch whose batches carry a NaN feature.
	nanEpoch = 2
)

type runConfig struct {
	Epochs int
	Seed   uint64
	Bugs   []string

	// Progress receives one line per epoch.
	Progress io.Writer
}

func parseBugs(names []string) ([]string, error) {
	var bugs []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || name == "none" {
			continue
		}
		if !slices.Contains(knownBugs, name) {
			return nil, fmt.Errorf("unknown bug %q (want one of %s)", name, strings.Join(knownBugs, ", "))
		}
		bugs = append(bugs, name)
	}
	return bugs, nil
}

// trainer runs the example training loop with the umlaut callback at
// its epoch boundaries.
type trainer struct {
	config     runConfig
	rng        *rand.Rand
	net        *network
	train      dataset
	validation dataset
}

func newTrainer(config runConfig) *trainer {
	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x5eed))
	scale := 1.0
	rate := sensibleRate
	if slices.Contains(config.Bugs, bugUnnormalized) {
		scale = 255
	}
	if slices.Contains(config.Bugs, bugHighRate) {
		rate = highRate
	}
	train, validation := blobs(rng, sampleCount, blobSpread, scale).split(validationShare)

	net := newNetwork(rng, len(blobCenters[0]), hiddenUnits, len(blobCenters), rate)
	net.linearHidden = slices.Contains(config.Bugs, bugLinear)
	net.logitsOutput = slices.Contains(config.Bugs, bugLogits)

	return &trainer{config: config, rng: rng, net: net, train: train, validation: validation}
}

// run trains for the configured epochs and returns every anomaly the
// callback reported.
func (t *trainer) run(ctx context.Context, cb *callback.Callback) ([]anomaly.Anomaly, error) {
	found := cb.OnTrainBegin(ctx)
	poison := slices.Contains(t.config.Bugs, bugNaN)

	for epoch := range t.config.Epochs {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		order := t.rng.Perm(len(t.train.y))
		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += batchSize {
			x, labels := t.train.batch(order[start:min(start+batchSize, len(order))])
			if poison && epoch >= nanEpoch {
				x.Data[0] = math.NaN()
			}
			if _, err := cb.Forward(ctx, x); err != nil {
				return found, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			loss, hits := t.net.step(labels)
			lossSum += loss * float64(len(labels))
			correct += hits
		}

		count := float64(len(t.train.y))
		validationLoss, validationAccuracy := t.net.evaluate(t.validation)
		logs := heuristics.Logs{
			"loss":         lossSum / count,
			"accuracy":     float64(correct) / count,
			"val_loss":     validationLoss,
			"val_accuracy": validationAccuracy,
		}
		if t.config.Progress != nil {
			fmt.Fprintf(t.config.Progress, "epoch %d/%d: loss %.4f accuracy %.4f val_loss %.4f val_accuracy %.4f\n",
				epoch+1, t.config.Epochs, logs["loss"], logs["accuracy"], logs["val_loss"], logs["val_accuracy"])
		}
		found = append(found, cb.OnEpochEnd(ctx, epoch, logs)...)
	}
	return found, nil
}
