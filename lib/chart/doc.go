// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chart renders a session's metric plots as PNG images, with
// the epochs of selected anomalies shaded.
//
// Each [Spec] is one plot ("loss", "acc") with its series ("train",
// "val") on an epoch axis. Highlighted regions are the half-open
// intervals produced by the view state; they are drawn as translucent
// bands spanning the full value range.
package chart
