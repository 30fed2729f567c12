// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shim

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bureau-foundation/umlaut/lib/model"
	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// doubler multiplies every element by two. It mutates nothing it is
// given so tests can check that snapshots are copies.
type doubler struct {
	failNext bool
}

func (d *doubler) Forward(_ context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	if d.failNext {
		return tensor.Tensor{}, errors.New("forward failed")
	}
	y := x.Clone()
	for i := range y.Data {
		y.Data[i] *= 2
	}
	return y, nil
}

type describedDoubler struct {
	doubler
}

func (describedDoubler) Describe() model.Architecture {
	return model.Architecture{
		Layers: []model.Layer{{Name: "out", Kind: "dense", Activation: "softmax"}},
		Loss:   model.Loss{Kind: "categorical_crossentropy"},
	}
}

func (describedDoubler) LearningRate() float64 { return 0.001 }

func vector(values ...float64) tensor.Tensor {
	return tensor.Tensor{Shape: []int{len(values)}, DType: tensor.Float32, Data: values}
}

func TestInstrumentRejectsUnsupportedModels(t *testing.T) {
	for _, host := range []any{nil, "not a model", struct{}{}} {
		_, err := Instrument(host)
		if !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("Instrument(%T) error = %v, want ErrUnsupportedModel", host, err)
		}
		var capability *CapabilityError
		if !errors.As(err, &capability) {
			t.Errorf("Instrument(%T) error is %T, want *CapabilityError", host, err)
		}
	}
}

func TestForwardIsTransparent(t *testing.T) {
	instrumented, err := Instrument(&doubler{})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	if _, ok := instrumented.LastInput(); ok {
		t.Fatal("LastInput() before any call ok = true, want false")
	}

	y, err := instrumented.Forward(t.Context(), vector(1, 2, 3))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got := y.Data; got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Errorf("Forward output = %v, want [2 4 6]", got)
	}

	input, ok := instrumented.LastInput()
	if !ok || input.Call != 1 || input.Tensor.Data[2] != 3 {
		t.Errorf("LastInput() = %+v, %v", input, ok)
	}
	output, ok := instrumented.LastOutput()
	if !ok || output.Call != 1 || output.Tensor.Data[2] != 6 {
		t.Errorf("LastOutput() = %+v, %v", output, ok)
	}

	// The snapshot is a copy: mutating the returned output must not
	// reach into the slot.
	y.Data[0] = -1
	output, _ = instrumented.LastOutput()
	if output.Tensor.Data[0] != 2 {
		t.Errorf("snapshot aliased caller data: %v", output.Tensor.Data)
	}
}

func TestForwardErrorKeepsInputOnly(t *testing.T) {
	host := &doubler{}
	instrumented, err := Instrument(host)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if _, err := instrumented.Forward(t.Context(), vector(1)); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	host.failNext = true
	if _, err := instrumented.Forward(t.Context(), vector(5)); err == nil {
		t.Fatal("Forward succeeded, want wrapped model's error")
	}

	input, _ := instrumented.LastInput()
	if input.Call != 2 || input.Tensor.Data[0] != 5 {
		t.Errorf("LastInput() = %+v, want call 2 with [5]", input)
	}
	output, _ := instrumented.LastOutput()
	if output.Call != 1 {
		t.Errorf("LastOutput().Call = %d, want 1 (failed call must not overwrite)", output.Call)
	}
}

func TestConcurrentForwardCalls(t *testing.T) {
	instrumented, err := Instrument(&doubler{})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	const workers = 8
	const callsPerWorker = 50
	var group sync.WaitGroup
	for range workers {
		group.Go(func() {
			for range callsPerWorker {
				if _, err := instrumented.Forward(context.Background(), vector(1, 2)); err != nil {
					t.Errorf("Forward: %v", err)
					return
				}
			}
		})
	}
	group.Wait()

	if got := instrumented.Calls(); got != workers*callsPerWorker {
		t.Errorf("Calls() = %d, want %d", got, workers*callsPerWorker)
	}
}

func TestOptionalCapabilities(t *testing.T) {
	plain, _ := Instrument(&doubler{})
	if _, ok := plain.Architecture(); ok {
		t.Error("Architecture() ok = true for model without Describe")
	}
	if _, ok := plain.LearningRate(); ok {
		t.Error("LearningRate() ok = true for model without LearningRate")
	}

	described, _ := Instrument(&describedDoubler{})
	architecture, ok := described.Architecture()
	if !ok || len(architecture.Layers) != 1 {
		t.Errorf("Architecture() = %+v, %v", architecture, ok)
	}
	if rate, ok := described.LearningRate(); !ok || rate != 0.001 {
		t.Errorf("LearningRate() = %v, %v, want 0.001, true", rate, ok)
	}
}
