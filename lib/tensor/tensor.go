// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tensor

import (
	"fmt"
	"math"
	"slices"
)

// DType identifies the element type a tensor had in the host framework.
type DType int

const (
	// Float32 is IEEE-754 single precision.
	Float32 DType = iota + 1
	// Float64 is IEEE-754 double precision.
	Float64
	// Float16 is IEEE-754 half precision.
	Float16
	// BFloat16 is the truncated-mantissa 16-bit float.
	BFloat16
	// Int8 through Int64 are signed integers.
	Int8
	Int16
	Int32
	Int64
	// Uint8 is the usual dtype of raw image data.
	Uint8
	// Bool is a boolean mask.
	Bool
)

var dtypeNames = map[DType]string{
	Float32:  "float32",
	Float64:  "float64",
	Float16:  "float16",
	BFloat16: "bfloat16",
	Int8:     "int8",
	Int16:    "int16",
	Int32:    "int32",
	Int64:    "int64",
	Uint8:    "uint8",
	Bool:     "bool",
}

// String returns the conventional lowercase name ("float32", "uint8").
func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// IsFloating reports whether d is a floating-point type.
func (d DType) IsFloating() bool {
	switch d {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// ParseDType is the inverse of [DType.String].
func ParseDType(name string) (DType, error) {
	for dtype, candidate := range dtypeNames {
		if candidate == name {
			return dtype, nil
		}
	}
	return 0, fmt.Errorf("tensor: unknown dtype %q", name)
}

// Tensor is a dense row-major array. Data holds every element widened
// to float64; len(Data) equals the product of Shape.
type Tensor struct {
	Shape []int
	DType DType
	Data  []float64
}

// New validates that data matches shape and returns the tensor. The
// slices are retained, not copied.
func New(dtype DType, shape []int, data []float64) (Tensor, error) {
	count := 1
	for axis, dim := range shape {
		if dim < 0 {
			return Tensor{}, fmt.Errorf("tensor: negative dimension %d on axis %d", dim, axis)
		}
		count *= dim
	}
	if count != len(data) {
		return Tensor{}, fmt.Errorf("tensor: shape %v holds %d elements, got %d", shape, count, len(data))
	}
	return Tensor{Shape: shape, DType: dtype, Data: data}, nil
}

// IsZero reports whether t is the zero Tensor (no dtype, no shape).
func (t Tensor) IsZero() bool {
	return t.DType == 0 && t.Shape == nil && t.Data == nil
}

// Rank returns the number of axes.
func (t Tensor) Rank() int { return len(t.Shape) }

// Len returns the number of elements.
func (t Tensor) Len() int { return len(t.Data) }

// Range returns the smallest and largest non-NaN elements. ok is false
// when the tensor is empty or every element is NaN.
func (t Tensor) Range() (low, high float64, ok bool) {
	low, high = math.Inf(1), math.Inf(-1)
	for _, value := range t.Data {
		if math.IsNaN(value) {
			continue
		}
		ok = true
		if value < low {
			low = value
		}
		if value > high {
			high = value
		}
	}
	if !ok {
		return 0, 0, false
	}
	return low, high, true
}

// HasNaN reports whether any element is NaN.
func (t Tensor) HasNaN() bool {
	return slices.ContainsFunc(t.Data, math.IsNaN)
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		DType: t.DType,
		Data:  slices.Clone(t.Data),
	}
}

// String summarizes the tensor without its values.
func (t Tensor) String() string {
	return fmt.Sprintf("%s%v", t.DType, t.Shape)
}
