// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package model defines the contracts a host training framework
// satisfies so umlaut can observe it.
//
// The host owns the model; umlaut only needs a handful of capabilities
// from it, each expressed as a single-method interface:
//
//   - [Forwarder]: the single forward entry point. Mandatory. The
//     instrumentation shim decorates exactly this method.
//   - [Describer]: static architecture facts (layer list, loss
//     configuration) for pretrain checks. Optional.
//   - [LearningRater]: the optimizer's current learning rate for the
//     learning-rate bounds check. Optional.
//
// A model that lacks an optional capability simply causes the checks
// that depend on it to be skipped.
package model
