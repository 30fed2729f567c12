// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shim instruments a host model's forward entry point so the
// most recent input and output tensors can be inspected at the next
// epoch boundary.
//
// [Instrument] wraps any value implementing [model.Forwarder]. The
// wrapper is observationally identical to the wrapped model: it returns
// the same output and the same error, and it never blocks the forward
// call. Each call additionally stores deep copies of x and y into two
// atomic slots. Readers ([Instrumented.LastInput],
// [Instrumented.LastOutput]) are expected to run at synchronization
// points between batches and see the latest completed write.
//
// Models without a forward entry point are rejected with a
// [*CapabilityError] wrapping [ErrUnsupportedModel]. The shim does not
// guess at alternative entry points.
package shim
