// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"strings"

	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// Forwarder is a model with one overridable forward entry point.
type Forwarder interface {
	Forward(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error)
}

// Describer exposes the model's static architecture.
type Describer interface {
	Describe() Architecture
}

// LearningRater exposes the optimizer's current learning rate.
type LearningRater interface {
	LearningRate() float64
}

// Architecture is the static shape of a model: its layers in
// application order and the loss it is trained against.
type Architecture struct {
	Layers []Layer
	Loss   Loss
}

// Layer describes one layer. Kind is the layer class ("dense",
// "conv2d", "softmax"); Activation is the activation the layer applies
// to its output, empty when the layer has none.
type Layer struct {
	Name       string
	Kind       string
	Activation string
}

// Loss describes the configured loss function. FromLogits is set when
// the loss applies its own normalization to raw scores.
type Loss struct {
	Kind       string
	FromLogits bool
}

// IsLinear reports whether the layer's declared activation is the
// identity. A layer that declares no activation is not linear in this
// sense: it may be a pooling or reshaping layer with no activation
// slot at all.
func (l Layer) IsLinear() bool {
	switch strings.ToLower(l.Activation) {
	case "linear", "identity":
		return true
	}
	return false
}

// IsNormalizing reports whether the layer's output is a probability
// distribution, either because the layer is itself a softmax layer or
// because it applies a softmax activation.
func (l Layer) IsNormalizing() bool {
	return strings.EqualFold(l.Kind, "softmax") || strings.EqualFold(l.Activation, "softmax")
}
