// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "testing"

func TestLayerClassification(t *testing.T) {
	tests := []struct {
		layer       Layer
		linear      bool
		normalizing bool
	}{
		{Layer{Kind: "dense", Activation: "linear"}, true, false},
		{Layer{Kind: "dense", Activation: "Identity"}, true, false},
		{Layer{Kind: "dense", Activation: "relu"}, false, false},
		{Layer{Kind: "flatten"}, false, false},
		{Layer{Kind: "dense", Activation: "softmax"}, false, true},
		{Layer{Kind: "Softmax"}, false, true},
	}
	for _, test := range tests {
		if got := test.layer.IsLinear(); got != test.linear {
			t.Errorf("%+v IsLinear() = %v, want %v", test.layer, got, test.linear)
		}
		if got := test.layer.IsNormalizing(); got != test.normalizing {
			t.Errorf("%+v IsNormalizing() = %v, want %v", test.layer, got, test.normalizing)
		}
	}
}
