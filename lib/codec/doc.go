// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is umlaut's single CBOR configuration.
//
// The HTTP API speaks JSON. CBOR is used where bytes stay inside
// umlaut: the client's offline spool journal and the dashboard's
// payload fingerprints. Both rely on the encoder using Core
// Deterministic Encoding (RFC 8949 §4.2): map keys are sorted and
// integers take their shortest form, so the same logical value always
// encodes to the same bytes. A fingerprint is therefore a hash of the
// encoding, with no separate canonicalization step.
//
// Types shared with the JSON API carry `json` struct tags only; the
// cbor library falls back to them when no `cbor` tag is present.
package codec
