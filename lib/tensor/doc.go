// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tensor holds the minimal dense-array representation that
// umlaut inspects: a shape, an element type, and the element values
// widened to float64.
//
// Host frameworks own their native tensor types. The adapter for a
// framework converts to [Tensor] at the instrumentation boundary, so
// every check in lib/heuristics works against one representation
// regardless of where the data came from. The original element type
// is preserved in [Tensor.DType] because the dtype itself is one of the
// inspected properties (integer inputs to a float network are an
// anomaly even though their values fit in a float64).
package tensor
