// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the wire payloads exchanged between the
// training-side client and the run server: metric point updates,
// anomaly updates, session listings, and the read-side views the
// dashboard polls.
//
// The HTTP API speaks JSON. The same types are also CBOR-encoded in the
// client's offline spool and in the dashboard's payload fingerprints,
// so [Point] implements both encodings explicitly and everything else
// relies on the cbor library's json-tag fallback (see lib/codec).
//
// Payloads are validated here, at the boundary, so the store only ever
// sees well-formed data: [PlotUpdate.Validate] and
// [AnomalyUpdates.Anomalies] reject malformed names, negative epochs,
// non-finite values, and unknown anomaly kinds.
package telemetry
