// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package callback is the hook a training loop calls into. It
// instruments the host model, runs the heuristic checks at the start
// of training and at every epoch boundary, prints a report of what
// was found, and ships metrics and anomalies to umlaut-server.
//
// The host loop calls [Callback.Forward] in place of its model's own
// forward method so the latest input is captured, then
// [Callback.OnTrainBegin] once and [Callback.OnEpochEnd] after each
// epoch. [Callback.Close] flushes queued telemetry.
//
// Nothing the callback does can fail a training run once it is
// constructed: check errors are logged and skipped, and telemetry is
// best-effort.
package callback
