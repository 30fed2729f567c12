// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package view holds the dashboard's derived state: which anomalies
// the user has selected and the chart regions those selections
// highlight.
//
// [State] is a small state machine over a selection set. Toggling an
// index twice restores the previous state. Polled payloads are
// compared by [Fingerprint], a keyed BLAKE3 digest of the payload's
// deterministic CBOR encoding, so two structurally equal payloads are
// recognized as equal even when they were decoded from different
// responses. An unchanged poll mutates nothing and leaves
// [State.Version] where it was; renderers key their redraws on the
// version.
//
// [Poller] drives polls at a fixed interval from a [clock.Clock]. A
// tick that arrives while the previous fetch is still running is
// skipped and counted, never queued.
package view
