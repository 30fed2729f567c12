// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/umlaut/lib/codec"
)

// Fingerprint is a 32-byte digest of a [Payload].
type Fingerprint [32]byte

// String returns the first 12 hex characters, enough to tell polls
// apart in logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:6])
}

// payloadDomainKey is the BLAKE3 key for payload fingerprints: the
// ASCII domain name, zero-padded to 32 bytes.
var payloadDomainKey = [32]byte{
	'u', 'm', 'l', 'a', 'u', 't', '.', 'v', 'i', 'e', 'w', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

// FingerprintOf hashes the deterministic CBOR encoding of payload.
// Map keys are sorted by the encoder, and a static anomaly (null
// epochs) encodes differently from an empty epoch list.
func FingerprintOf(payload Payload) (Fingerprint, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("view: encoding payload: %w", err)
	}
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("view: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}
