// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/bureau-foundation/umlaut/lib/model"
	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// network is a two-layer perceptron classifier: a dense hidden layer
// and a dense output layer, trained with plain minibatch SGD on
// softmax cross-entropy.
type network struct {
	w1 [][]float64 // hidden x inputs
	b1 []float64
	w2 [][]float64 // classes x hidden
	b2 []float64

	rate float64

	// linearHidden skips the hidden ReLU. logitsOutput describes the
	// output layer as linear with a loss that expects probabilities;
	// the arithmetic still normalizes, so only the description is
	// wrong.
	linearHidden bool
	logitsOutput bool

	// Saved by Forward for the following step.
	lastInput  [][]float64
	lastHidden [][]float64
	lastPre    [][]float64
	lastProbs  [][]float64
}

func newNetwork(rng *rand.Rand, inputs, hidden, classes int, rate float64) *network {
	n := &network{
		w1:   make([][]float64, hidden),
		b1:   make([]float64, hidden),
		w2:   make([][]float64, classes),
		b2:   make([]float64, classes),
		rate: rate,
	}
	// He initialization for the ReLU layer, Glorot-style for the output.
	for i := range n.w1 {
		n.w1[i] = make([]float64, inputs)
		for j := range n.w1[i] {
			n.w1[i][j] = rng.NormFloat64() * math.Sqrt(2/float64(inputs))
		}
	}
	for i := range n.w2 {
		n.w2[i] = make([]float64, hidden)
		for j := range n.w2[i] {
			n.w2[i][j] = rng.NormFloat64() * math.Sqrt(1/float64(hidden))
		}
	}
	return n
}

func (n *network) inputs() int { return len(n.w1[0]) }

func (n *network) Describe() model.Architecture {
	hiddenActivation := "relu"
	if n.linearHidden {
		hiddenActivation = "linear"
	}
	outputActivation := "softmax"
	if n.logitsOutput {
		outputActivation = "linear"
	}
	return model.Architecture{
		Layers: []model.Layer{
			{Name: "hidden", Kind: "dense", Activation: hiddenActivation},
			{Name: "output", Kind: "dense", Activation: outputActivation},
		},
		Loss: model.Loss{Kind: "sparse_categorical_crossentropy"},
	}
}

func (n *network) LearningRate() float64 { return n.rate }

// Forward returns class probabilities for a [batch, inputs] tensor and
// keeps the activations for step.
func (n *network) Forward(_ context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	if x.Rank() != 2 || x.Shape[1] != n.inputs() {
		return tensor.Tensor{}, fmt.Errorf("network: input shape %v, want [batch %d]", x.Shape, n.inputs())
	}
	rows := make([][]float64, x.Shape[0])
	for i := range rows {
		rows[i] = x.Data[i*n.inputs() : (i+1)*n.inputs()]
	}
	pre, hidden, probs := n.predict(rows)
	n.lastInput, n.lastPre, n.lastHidden, n.lastProbs = rows, pre, hidden, probs

	classes := len(n.b2)
	out := tensor.Tensor{Shape: []int{len(rows), classes}, DType: tensor.Float32, Data: make([]float64, 0, len(rows)*classes)}
	for _, p := range probs {
		out.Data = append(out.Data, p...)
	}
	return out, nil
}

func (n *network) predict(rows [][]float64) (pre, hidden, probs [][]float64) {
	pre = make([][]float64, len(rows))
	hidden = make([][]float64, len(rows))
	probs = make([][]float64, len(rows))
	for r, x := range rows {
		pre[r] = make([]float64, len(n.b1))
		hidden[r] = make([]float64, len(n.b1))
		for i, weights := range n.w1 {
			z := n.b1[i]
			for j, w := range weights {
				z += w * x[j]
			}
			pre[r][i] = z
			if n.linearHidden || z > 0 {
				hidden[r][i] = z
			}
		}
		logits := make([]float64, len(n.b2))
		for k, weights := range n.w2 {
			z := n.b2[k]
			for i, w := range weights {
				z += w * hidden[r][i]
			}
			logits[k] = z
		}
		probs[r] = softmax(logits)
	}
	return pre, hidden, probs
}

// step applies one SGD update from the last Forward and returns the
// batch's mean loss and number of correct predictions.
func (n *network) step(labels []int) (loss float64, correct int) {
	batch := float64(len(labels))
	gradW2 := zeros(len(n.w2), len(n.w2[0]))
	gradB2 := make([]float64, len(n.b2))
	gradW1 := zeros(len(n.w1), len(n.w1[0]))
	gradB1 := make([]float64, len(n.b1))

	for r, label := range labels {
		probs := n.lastProbs[r]
		loss += crossEntropy(probs, label)
		if argmax(probs) == label {
			correct++
		}

		delta := make([]float64, len(probs))
		copy(delta, probs)
		delta[label]--
		for k := range delta {
			gradB2[k] += delta[k]
			for i, h := range n.lastHidden[r] {
				gradW2[k][i] += delta[k] * h
			}
		}
		for i := range n.b1 {
			if !n.linearHidden && n.lastPre[r][i] <= 0 {
				continue
			}
			var back float64
			for k := range delta {
				back += delta[k] * n.w2[k][i]
			}
			gradB1[i] += back
			for j, x := range n.lastInput[r] {
				gradW1[i][j] += back * x
			}
		}
	}

	scale := n.rate / batch
	for k := range n.w2 {
		n.b2[k] -= scale * gradB2[k]
		for i := range n.w2[k] {
			n.w2[k][i] -= scale * gradW2[k][i]
		}
	}
	for i := range n.w1 {
		n.b1[i] -= scale * gradB1[i]
		for j := range n.w1[i] {
			n.w1[i][j] -= scale * gradW1[i][j]
		}
	}
	return loss / batch, correct
}

// evaluate returns mean loss and accuracy over data without updating
// weights.
func (n *network) evaluate(data dataset) (loss, accuracy float64) {
	_, _, probs := n.predict(data.x)
	correct := 0
	for r, p := range probs {
		loss += crossEntropy(p, data.y[r])
		if argmax(p) == data.y[r] {
			correct++
		}
	}
	count := float64(len(data.y))
	return loss / count, float64(correct) / count
}

func softmax(logits []float64) []float64 {
	peak := math.Inf(-1)
	for _, z := range logits {
		peak = max(peak, z)
	}
	out := make([]float64, len(logits))
	var sum float64
	for k, z := range logits {
		out[k] = math.Exp(z - peak)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}

func crossEntropy(probs []float64, label int) float64 {
	return -math.Log(max(probs[label], 1e-12))
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func zeros(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}
