// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heuristics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/model"
	"github.com/bureau-foundation/umlaut/lib/sourceref"
	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// ErrCannotEvaluate is wrapped by check errors caused by a missing
// input. The engine skips the check and continues.
var ErrCannotEvaluate = errors.New("cannot evaluate")

// Phase is when a check runs.
type Phase int

const (
	PhasePretrain Phase = iota + 1
	PhaseEpoch
)

func (p Phase) String() string {
	switch p {
	case PhasePretrain:
		return "pretrain"
	case PhaseEpoch:
		return "epoch"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ChannelOrder is the axis convention for rank-4 image input.
type ChannelOrder string

const (
	// ChannelsLast is [batch, height, width, channels].
	ChannelsLast ChannelOrder = "channels_last"
	// ChannelsFirst is [batch, channels, height, width].
	ChannelsFirst ChannelOrder = "channels_first"
)

// ParseChannelOrder validates a channel-order name. The empty string
// selects ChannelsLast.
func ParseChannelOrder(name string) (ChannelOrder, error) {
	switch ChannelOrder(name) {
	case "", ChannelsLast:
		return ChannelsLast, nil
	case ChannelsFirst:
		return ChannelsFirst, nil
	}
	return "", fmt.Errorf("unknown channel order %q (want %s or %s)", name, ChannelsLast, ChannelsFirst)
}

// spatialAxes returns the two axes of a rank-4 tensor holding height
// and width.
func (c ChannelOrder) spatialAxes() (int, int) {
	if c == ChannelsFirst {
		return 2, 3
	}
	return 1, 2
}

// Logs are the scalar metrics a host reports at the end of an epoch,
// keyed by metric name ("loss", "val_loss", "accuracy", ...).
type Logs map[string]float64

// PretrainInput is what pretrain checks inspect. Architecture is nil
// when the host model does not describe itself.
type PretrainInput struct {
	Architecture *model.Architecture
}

// EpochInput is what epoch checks inspect. Input is nil before the
// first forward call; LearningRate is nil when the host does not
// expose its optimizer.
type EpochInput struct {
	Epoch        int
	Logs         Logs
	Input        *tensor.Tensor
	LearningRate *float64
}

// Config configures an Engine.
type Config struct {
	// ChannelOrder selects the spatial axes for the input shape
	// check. Defaults to ChannelsLast.
	ChannelOrder ChannelOrder

	// Locator, if set, enriches anomalies with a source reference.
	Locator sourceref.Locator

	// Logger receives skipped-check warnings. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// EpochRecord is one epoch's logs as the engine saw them.
type EpochRecord struct {
	Epoch int
	Logs  Logs
}

// Engine runs checks and keeps the per-epoch history the trend checks
// compare against. Engine is safe for concurrent use, but runs are
// serialized.
type Engine struct {
	channelOrder ChannelOrder
	locator      sourceref.Locator
	logger       *slog.Logger

	mu      sync.Mutex
	history []EpochRecord
}

// New returns an Engine.
func New(config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	order := config.ChannelOrder
	if order == "" {
		order = ChannelsLast
	}
	return &Engine{
		channelOrder: order,
		locator:      config.Locator,
		logger:       logger,
	}
}

// RunPretrain runs every pretrain check and returns the anomalies in
// check order.
func (e *Engine) RunPretrain(ctx context.Context, input PretrainInput) []anomaly.Anomaly {
	e.mu.Lock()
	defer e.mu.Unlock()
	return runChecks(ctx, e, PhasePretrain, -1, pretrainChecks, input)
}

// RunEpoch runs every epoch check, then appends the epoch's logs to
// the history. Anomalies are returned in check order.
func (e *Engine) RunEpoch(ctx context.Context, input EpochInput) []anomaly.Anomaly {
	e.mu.Lock()
	defer e.mu.Unlock()
	found := runChecks(ctx, e, PhaseEpoch, input.Epoch, epochChecks, input)
	e.history = append(e.history, EpochRecord{Epoch: input.Epoch, Logs: cloneLogs(input.Logs)})
	return found
}

// History returns a copy of the recorded epochs, oldest first.
func (e *Engine) History() []EpochRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := make([]EpochRecord, len(e.history))
	for i, record := range e.history {
		records[i] = EpochRecord{Epoch: record.Epoch, Logs: cloneLogs(record.Logs)}
	}
	return records
}

// previous returns the most recent recorded epoch. Caller holds e.mu.
func (e *Engine) previous() (EpochRecord, bool) {
	if len(e.history) == 0 {
		return EpochRecord{}, false
	}
	return e.history[len(e.history)-1], true
}

// check is one rule. evaluate returns nil when nothing is detected.
type check[In any] struct {
	name      string
	reference *regexp.Regexp
	evaluate  func(*Engine, In) (*anomaly.Anomaly, error)
}

func runChecks[In any](ctx context.Context, e *Engine, phase Phase, epoch int, checks []check[In], input In) []anomaly.Anomaly {
	var found []anomaly.Anomaly
	for _, rule := range checks {
		detected, err := rule.evaluate(e, input)
		if err != nil {
			attrs := []any{"check", rule.name, "phase", phase.String(), "error", err}
			if phase == PhaseEpoch {
				attrs = append(attrs, "epoch", epoch)
			}
			if errors.Is(err, ErrCannotEvaluate) {
				e.logger.WarnContext(ctx, "heuristic skipped", attrs...)
			} else {
				e.logger.ErrorContext(ctx, "heuristic failed", attrs...)
			}
			continue
		}
		if detected == nil {
			continue
		}
		if e.locator != nil && rule.reference != nil {
			if location, ok := e.locator.LocateReference(rule.reference); ok {
				detected.Reference = &location
			}
		}
		found = append(found, *detected)
	}
	return found
}

func cloneLogs(logs Logs) Logs {
	if logs == nil {
		return nil
	}
	clone := make(Logs, len(logs))
	for key, value := range logs {
		clone[key] = value
	}
	return clone
}

// missing builds an ErrCannotEvaluate error naming the absent input.
func missing(what string) error {
	return fmt.Errorf("%w: %s", ErrCannotEvaluate, what)
}

// lookup returns logs[key] or an ErrCannotEvaluate error.
func (l Logs) lookup(key string) (float64, error) {
	value, ok := l[key]
	if !ok {
		return 0, missing(fmt.Sprintf("log key %q not reported", key))
	}
	return value, nil
}

// accuracyKey returns the first accuracy metric name the logs carry.
func (l Logs) accuracyKey() (string, bool) {
	for _, key := range accuracyKeys {
		if _, ok := l[key]; ok {
			return key, true
		}
	}
	return "", false
}

var accuracyKeys = []string{"accuracy", "acc"}

// AccuracyKey returns the accuracy metric name present in logs, if
// any: "accuracy" preferred over "acc".
func AccuracyKey(logs Logs) (string, bool) {
	return logs.accuracyKey()
}

// CheckNames lists the check names of a phase in execution order.
func CheckNames(phase Phase) []string {
	switch phase {
	case PhasePretrain:
		return names(pretrainChecks)
	case PhaseEpoch:
		return names(epochChecks)
	}
	return nil
}

func names[In any](checks []check[In]) []string {
	result := make([]string, 0, len(checks))
	for _, rule := range checks {
		result = append(result, rule.name)
	}
	return slices.Clip(result)
}
