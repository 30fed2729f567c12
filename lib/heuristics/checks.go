// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heuristics

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
)

const (
	// InputLowerBound and InputUpperBound bound normalized input.
	InputLowerBound = -1.0
	InputUpperBound = 1.0

	// LearningRateHigh and LearningRateLow bound a sane learning rate.
	LearningRateHigh = 0.01
	LearningRateLow  = 1e-7

	// OverconfidentAccuracy is the validation accuracy above which
	// the result is treated as suspicious.
	OverconfidentAccuracy = 0.95

	// OverconfidentWarmupEpochs is the number of initial epochs the
	// overconfidence check ignores as noise.
	OverconfidentWarmupEpochs = 3
)

// distributionLosses are loss kinds that expect a probability
// distribution as the prediction, compared after normalizeLossKind.
var distributionLosses = map[string]bool{
	"categoricalcrossentropy":       true,
	"sparsecategoricalcrossentropy": true,
	"kldivergence":                  true,
	"kld":                           true,
	"kullbackleiblerdivergence":     true,
}

func normalizeLossKind(kind string) string {
	kind = strings.ToLower(kind)
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == ' ' {
			return -1
		}
		return r
	}, kind)
}

var pretrainChecks = []check[PretrainInput]{
	{
		name:      "missing_activations",
		reference: regexp.MustCompile(`(?i)activation`),
		evaluate:  checkMissingActivations,
	},
	{
		name:      "no_softmax",
		reference: regexp.MustCompile(`(?i)crossentropy|from_?logits|softmax`),
		evaluate:  checkNoSoftmax,
	},
}

var epochChecks = []check[EpochInput]{
	{
		name:      "input_range",
		reference: regexp.MustCompile(`(?i)\bfit\(|\btrain\(`),
		evaluate:  checkInputRange,
	},
	{
		name:      "input_dtype",
		reference: regexp.MustCompile(`(?i)\bfit\(|\btrain\(`),
		evaluate:  checkInputDType,
	},
	{
		name:     "input_shape",
		evaluate: checkInputShape,
	},
	{
		name:     "nan_loss",
		evaluate: checkNaNLoss,
	},
	{
		name:      "learning_rate",
		reference: regexp.MustCompile(`(?i)learning_?rate`),
		evaluate:  checkLearningRate,
	},
	{
		name:     "overfitting",
		evaluate: checkOverfitting,
	},
	{
		name:     "overconfident_validation",
		evaluate: checkOverconfidentValidation,
	},
}

func checkMissingActivations(_ *Engine, input PretrainInput) (*anomaly.Anomaly, error) {
	if input.Architecture == nil {
		return nil, missing("model architecture not available")
	}
	layers := input.Architecture.Layers
	if len(layers) == 0 {
		return nil, missing("model has no layers")
	}

	var linear []string
	for index, layer := range layers[:len(layers)-1] {
		if layer.IsLinear() {
			name := layer.Name
			if name == "" {
				name = fmt.Sprintf("#%d", index)
			}
			linear = append(linear, name)
		}
	}
	if len(linear) == 0 {
		return nil, nil
	}
	found := anomaly.Static(anomaly.MissingActivations,
		fmt.Sprintf("Hidden layers with linear activation: %s.", strings.Join(linear, ", ")))
	return &found, nil
}

func checkNoSoftmax(_ *Engine, input PretrainInput) (*anomaly.Anomaly, error) {
	if input.Architecture == nil {
		return nil, missing("model architecture not available")
	}
	architecture := input.Architecture
	if len(architecture.Layers) == 0 {
		return nil, missing("model has no layers")
	}
	if !distributionLosses[normalizeLossKind(architecture.Loss.Kind)] {
		return nil, nil
	}
	final := architecture.Layers[len(architecture.Layers)-1]
	if final.IsNormalizing() || architecture.Loss.FromLogits {
		return nil, nil
	}
	found := anomaly.Static(anomaly.NoSoftmax,
		fmt.Sprintf("Loss %s is applied to the output of layer %q.", architecture.Loss.Kind, final.Name))
	return &found, nil
}

func checkInputRange(_ *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	if input.Input == nil {
		return nil, missing("no input snapshot")
	}
	low, high, ok := input.Input.Range()
	if !ok {
		return nil, nil
	}

	var remarks []string
	if low < InputLowerBound {
		remarks = append(remarks, fmt.Sprintf("The minimum input value is %g, less than the typical value of %g.", low, InputLowerBound))
	}
	if high > InputUpperBound {
		remarks = append(remarks, fmt.Sprintf("The maximum input value is %g, greater than the typical value of %g.", high, InputUpperBound))
	}
	if len(remarks) == 0 {
		return nil, nil
	}
	found := anomaly.At(anomaly.InputNormalization, input.Epoch, strings.Join(remarks, " "))
	return &found, nil
}

func checkInputDType(_ *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	if input.Input == nil {
		return nil, missing("no input snapshot")
	}
	if input.Input.DType.IsFloating() {
		return nil, nil
	}
	found := anomaly.At(anomaly.InputNotFloating, input.Epoch,
		fmt.Sprintf("The input element type is %s.", input.Input.DType))
	return &found, nil
}

func checkInputShape(e *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	if input.Input == nil {
		return nil, missing("no input snapshot")
	}
	if input.Input.Rank() != 4 {
		return nil, nil
	}
	heightAxis, widthAxis := e.channelOrder.spatialAxes()
	height, width := input.Input.Shape[heightAxis], input.Input.Shape[widthAxis]
	if height == width {
		return nil, nil
	}
	found := anomaly.At(anomaly.InputWrongShape, input.Epoch,
		fmt.Sprintf("Input shape %v has spatial dimensions %dx%d under %s.", input.Input.Shape, height, width, e.channelOrder))
	return &found, nil
}

func checkNaNLoss(_ *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	loss, err := input.Logs.lookup("loss")
	if err != nil {
		return nil, err
	}
	if !math.IsNaN(loss) {
		return nil, nil
	}
	if input.Input == nil {
		return nil, missing("loss is NaN but there is no input snapshot")
	}
	if !input.Input.HasNaN() {
		return nil, nil
	}
	found := anomaly.At(anomaly.NaNInput, input.Epoch, "")
	return &found, nil
}

func checkLearningRate(_ *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	if input.LearningRate == nil {
		return nil, missing("learning rate not available")
	}
	rate := *input.LearningRate
	switch {
	case rate > LearningRateHigh:
		found := anomaly.At(anomaly.LearningRateHigh, input.Epoch,
			fmt.Sprintf("The learning rate is %g, above %g.", rate, LearningRateHigh))
		return &found, nil
	case rate < LearningRateLow:
		found := anomaly.At(anomaly.LearningRateLow, input.Epoch,
			fmt.Sprintf("The learning rate is %g, below %g.", rate, LearningRateLow))
		return &found, nil
	}
	return nil, nil
}

func checkOverfitting(e *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	previous, ok := e.previous()
	if !ok {
		return nil, nil
	}
	loss, err := input.Logs.lookup("loss")
	if err != nil {
		return nil, err
	}
	validationLoss, err := input.Logs.lookup("val_loss")
	if err != nil {
		return nil, err
	}
	previousLoss, err := previous.Logs.lookup("loss")
	if err != nil {
		return nil, err
	}
	previousValidationLoss, err := previous.Logs.lookup("val_loss")
	if err != nil {
		return nil, err
	}

	deltaLoss := loss - previousLoss
	deltaValidation := validationLoss - previousValidationLoss
	if deltaValidation > 0 && deltaLoss <= 0 {
		found := anomaly.At(anomaly.Overfitting, input.Epoch,
			fmt.Sprintf("Validation loss rose by %g while training loss changed by %g.", deltaValidation, deltaLoss))
		return &found, nil
	}
	return nil, nil
}

func checkOverconfidentValidation(_ *Engine, input EpochInput) (*anomaly.Anomaly, error) {
	if input.Epoch < OverconfidentWarmupEpochs {
		return nil, nil
	}
	key, ok := input.Logs.accuracyKey()
	if !ok {
		return nil, missing("no accuracy metric reported")
	}
	trainAccuracy := input.Logs[key]
	validationAccuracy, err := input.Logs.lookup("val_" + key)
	if err != nil {
		return nil, err
	}

	switch {
	case validationAccuracy > OverconfidentAccuracy:
		found := anomaly.At(anomaly.OverconfidentVal, input.Epoch,
			fmt.Sprintf("Validation accuracy is %g, above %g.", validationAccuracy, OverconfidentAccuracy))
		return &found, nil
	case validationAccuracy > trainAccuracy:
		found := anomaly.At(anomaly.OverconfidentVal, input.Epoch,
			fmt.Sprintf("Validation accuracy %g exceeds training accuracy %g.", validationAccuracy, trainAccuracy))
		return &found, nil
	}
	return nil, nil
}
