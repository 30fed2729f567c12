// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"math/rand/v2"

	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// dataset is a labelled feature matrix.
type dataset struct {
	x [][]float64
	y []int
}

// blobCenters are the class means of the synthetic data, inside the
// unit square so normalized features stay within [-1, 1].
var blobCenters = [][]float64{
	{-0.4, -0.3},
	{0.4, -0.3},
	{0.0, 0.45},
}

// blobs draws n overlapping Gaussian clusters, one per center, with
// every feature clipped to [-1, 1] and then multiplied by scale.
func blobs(rng *rand.Rand, n int, spread, scale float64) dataset {
	data := dataset{x: make([][]float64, n), y: make([]int, n)}
	for i := range n {
		label := i % len(blobCenters)
		row := make([]float64, len(blobCenters[label]))
		for j, center := range blobCenters[label] {
			value := center + rng.NormFloat64()*spread
			row[j] = math.Max(-1, math.Min(1, value)) * scale
		}
		data.x[i] = row
		data.y[i] = label
	}
	return data
}

// split returns the first (1-fraction) of the rows for training and
// the rest for validation.
func (d dataset) split(fraction float64) (train, validation dataset) {
	cut := len(d.y) - int(float64(len(d.y))*fraction)
	return dataset{x: d.x[:cut], y: d.y[:cut]}, dataset{x: d.x[cut:], y: d.y[cut:]}
}

// batch gathers the rows at indices into a [len(indices), features]
// float32 tensor and their labels.
func (d dataset) batch(indices []int) (tensor.Tensor, []int) {
	features := len(d.x[0])
	x := tensor.Tensor{
		Shape: []int{len(indices), features},
		DType: tensor.Float32,
		Data:  make([]float64, 0, len(indices)*features),
	}
	labels := make([]int, len(indices))
	for i, index := range indices {
		x.Data = append(x.Data, d.x[index]...)
		labels[i] = d.y[index]
	}
	return x, labels
}
