// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package heuristics is the rule engine that inspects a training run
// for anti-patterns.
//
// Checks are grouped into two phases. [PhasePretrain] checks run once
// before training against the model's static architecture.
// [PhaseEpoch] checks run at the end of every epoch against that
// epoch's logs, the most recent input snapshot from the
// instrumentation shim, and the optimizer's learning rate.
//
// Within a phase every check runs every cycle, in a fixed order, and
// independently of the others: one check firing does not suppress the
// rest. A check that is missing an input (no snapshot yet, a log key
// the model does not report) returns an error wrapping
// [ErrCannotEvaluate]; the engine logs a warning and moves on to the
// next check.
//
// Thresholds are the exported constants in this package. They are not
// configurable.
//
// When the engine has a [sourceref.Locator], each emitted anomaly is
// enriched with the source line that most likely caused it. A failed
// lookup leaves Reference nil and has no other effect.
package heuristics
