// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetryclient ships a training run's metrics and anomalies
// to umlaut-server, and reads them back for dashboards.
//
// A [Client] owns one session. [Client.SendMetrics] and
// [Client.SendAnomalies] never block on the network and never return
// an error: each call encodes one [Batch] and pushes it onto a
// byte-bounded [Buffer] that drops its oldest entries when full. A
// single shipper goroutine posts batches in order. A batch is posted
// at most once: a failed post (transport error, timeout, non-2xx) is
// logged and the batch discarded.
//
// In offline mode the client performs no network I/O. The session id
// is "local:<name>" and batches are discarded, or journaled to a
// [Spool] when a spool path is configured. [ReplaySpool] later posts a
// journal to a live server.
//
// Session resolution records the names each process has claimed in a
// [Claims] registry. A second client in the same process asking for an
// already-claimed name gets a freshly disambiguated session
// (name_1, name_2, ...) instead of sharing the first run's.
//
// [Reader] is the read side used by the dashboard and CLI.
package telemetryclient
