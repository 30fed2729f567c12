// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package anomaly defines the anomaly records produced by the
// heuristic engine, stored by the run store, and rendered by the
// dashboard.
//
// The set of kinds is closed ([Kinds]). Each kind has a catalog entry
// ([Describe]) carrying its human-readable title, explanation, and
// markdown remediation, so every surface that shows an anomaly renders
// it identically.
//
// An anomaly's epochs are an [EpochSet]: a sorted set of epoch
// numbers, or nil for a static anomaly detected before training began.
// Merging two records takes the union of their epochs, and a static
// record stays static: the union of anything with nil is nil.
package anomaly
