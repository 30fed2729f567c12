// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/umlaut/lib/codec"
)

// Point is one observation of a scalar series.
//
// Encoding: a two-element array [epoch, value] in both JSON and CBOR.
// Decoding accepts an epoch encoded as an integral float (3.0), which
// some clients produce, rejects null elements, and folds -0 into 0 so
// equal observations encode to equal bytes.
type Point struct {
	Epoch int
	Value float64
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return nil, fmt.Errorf("telemetry: point at epoch %d has non-finite value %v", p.Epoch, p.Value)
	}
	return json.Marshal([2]float64{float64(p.Epoch), p.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("telemetry: point must be [epoch, value]: %w", err)
	}
	return p.fromPair(pair)
}

// MarshalCBOR implements cbor.Marshaler.
func (p Point) MarshalCBOR() ([]byte, error) {
	return codec.Marshal([2]float64{float64(p.Epoch), p.Value})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *Point) UnmarshalCBOR(data []byte) error {
	var pair []*float64
	if err := codec.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("telemetry: point must be [epoch, value]: %w", err)
	}
	return p.fromPair(pair)
}

func (p *Point) fromPair(pair []*float64) error {
	if len(pair) != 2 {
		return fmt.Errorf("telemetry: point must have 2 elements, got %d", len(pair))
	}
	if pair[0] == nil || pair[1] == nil {
		return errors.New("telemetry: point elements must not be null")
	}
	epoch := *pair[0]
	if epoch != math.Trunc(epoch) || epoch < 0 || epoch > math.MaxInt32 {
		return fmt.Errorf("telemetry: epoch %v is not a non-negative integer", epoch)
	}
	p.Epoch = int(epoch)
	p.Value = *pair[1]
	if p.Value == 0 {
		p.Value = 0
	}
	return nil
}
