// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bureau-foundation/umlaut/lib/model"
	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// ErrUnsupportedModel is the sentinel wrapped by every
// [CapabilityError].
var ErrUnsupportedModel = errors.New("model does not expose a forward entry point")

// CapabilityError reports a host model that cannot be instrumented.
type CapabilityError struct {
	// Type is the Go type of the rejected model ("<nil>" for nil).
	Type string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("shim: cannot instrument %s: %v", e.Type, ErrUnsupportedModel)
}

func (e *CapabilityError) Unwrap() error { return ErrUnsupportedModel }

// Snapshot is a tensor captured during a forward call. Call is the
// 1-based sequence number of the forward call that produced it.
type Snapshot struct {
	Tensor tensor.Tensor
	Call   uint64
}

// Instrumented decorates a [model.Forwarder]. It implements
// [model.Forwarder] itself, so instrumented models compose with any
// code written against the interface.
type Instrumented struct {
	host  any
	inner model.Forwarder

	calls      atomic.Uint64
	lastInput  atomic.Pointer[Snapshot]
	lastOutput atomic.Pointer[Snapshot]
}

// Instrument wraps host. It returns a *CapabilityError if host is nil
// or does not implement [model.Forwarder].
func Instrument(host any) (*Instrumented, error) {
	if host == nil {
		return nil, &CapabilityError{Type: "<nil>"}
	}
	forwarder, ok := host.(model.Forwarder)
	if !ok {
		return nil, &CapabilityError{Type: fmt.Sprintf("%T", host)}
	}
	return &Instrumented{host: host, inner: forwarder}, nil
}

// Forward calls the wrapped model. The input slot is written before
// the wrapped call starts, so a failing call still leaves its input
// behind for inspection. The output slot is written only on success.
func (m *Instrumented) Forward(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	call := m.calls.Add(1)
	m.lastInput.Store(&Snapshot{Tensor: x.Clone(), Call: call})

	y, err := m.inner.Forward(ctx, x)
	if err != nil {
		return y, err
	}

	m.lastOutput.Store(&Snapshot{Tensor: y.Clone(), Call: call})
	return y, nil
}

// LastInput returns the input of the most recent forward call.
func (m *Instrumented) LastInput() (Snapshot, bool) {
	return load(&m.lastInput)
}

// LastOutput returns the output of the most recent successful forward
// call.
func (m *Instrumented) LastOutput() (Snapshot, bool) {
	return load(&m.lastOutput)
}

// Calls returns the number of forward calls made so far.
func (m *Instrumented) Calls() uint64 {
	return m.calls.Load()
}

// Architecture returns the wrapped model's architecture if it
// implements [model.Describer].
func (m *Instrumented) Architecture() (model.Architecture, bool) {
	describer, ok := m.host.(model.Describer)
	if !ok {
		return model.Architecture{}, false
	}
	return describer.Describe(), true
}

// LearningRate returns the wrapped model's current learning rate if it
// implements [model.LearningRater].
func (m *Instrumented) LearningRate() (float64, bool) {
	rater, ok := m.host.(model.LearningRater)
	if !ok {
		return 0, false
	}
	return rater.LearningRate(), true
}

// Unwrap returns the host model.
func (m *Instrumented) Unwrap() any {
	return m.host
}

func load(slot *atomic.Pointer[Snapshot]) (Snapshot, bool) {
	snapshot := slot.Load()
	if snapshot == nil {
		return Snapshot{}, false
	}
	return *snapshot, true
}
