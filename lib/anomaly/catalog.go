// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anomaly

// Entry is the human-readable description of a kind. Remediation is
// markdown.
type Entry struct {
	Title       string
	Explanation string
	Remediation string
	Static      bool
}

// Describe returns the catalog entry for kind. Unknown kinds get a
// generic entry naming the kind so rendering never fails.
func Describe(kind Kind) Entry {
	if entry, ok := catalog[kind]; ok {
		return entry
	}
	return Entry{
		Title:       "Unrecognized anomaly " + string(kind),
		Explanation: "This anomaly was reported by a newer client than this build understands.",
		Remediation: "Upgrade umlaut to see a description and suggested fix.",
	}
}

var catalog = map[Kind]Entry{
	InputNormalization: {
		Title:       "Input data exceeds typical limits",
		Explanation: "The input batch does not look normalized.",
		Remediation: "Scale inputs into [0, 1] or [-1, 1] before they reach the model. " +
			"For 8-bit image data (0 to 255) a common mapping to [-1, 1] is:\n\n" +
			"`images = images/127.5 - 1`",
	},
	InputNotFloating: {
		Title:       "Input is not a floating-point type",
		Explanation: "The input batch has an integer or boolean element type.",
		Remediation: "Convert inputs to a floating type such as float32 before training. " +
			"Gradients do not flow through integer tensors, and many layers silently " +
			"truncate their results.\n\n`x_train = x_train.astype(\"float32\")`",
	},
	InputWrongShape: {
		Title:       "Image input is not square",
		Explanation: "The input is rank 4 but its two spatial dimensions differ, which usually means the channel axis is in the wrong place.",
		Remediation: "Check the channel ordering your layers expect (`channels_last` is " +
			"`[batch, height, width, channels]`, `channels_first` is " +
			"`[batch, channels, height, width]`) and transpose the input to match. " +
			"If the images really are rectangular, this anomaly can be ignored.",
	},
	NaNInput: {
		Title:       "NaN in loss",
		Explanation: "The loss became NaN and the last input batch contains NaN values.",
		Remediation: "Find where NaN enters the data pipeline: missing values in the source " +
			"data, division by zero during preprocessing, or a log of zero. " +
			"Replace or drop those entries before training, for example:\n\n" +
			"`x = np.nan_to_num(x)`",
	},
	LearningRateHigh: {
		Title:       "Learning rate is high",
		Explanation: "The optimizer learning rate is above 0.01, which often makes training diverge.",
		Remediation: "Lower the learning rate. Adam typically works between 1e-5 and 1e-2:\n\n" +
			"`optimizer = Adam(learning_rate=1e-3)`",
	},
	LearningRateLow: {
		Title:       "Learning rate is low",
		Explanation: "The optimizer learning rate is below 1e-7, so weights barely move each step.",
		Remediation: "Raise the learning rate, or check that a schedule has not decayed it " +
			"to nearly zero.",
	},
	Overfitting: {
		Title:       "Possible overfitting",
		Explanation: "Validation loss is increasing while training loss is flat or decreasing.",
		Remediation: "Reduce model capacity (fewer units or filters) or add regularization. " +
			"L1 or L2 weight penalties and dropout both help, as does early stopping on " +
			"validation loss.",
	},
	OverconfidentVal: {
		Title:       "Validation accuracy is suspiciously high",
		Explanation: "Validation accuracy is above 95% or higher than training accuracy.",
		Remediation: "Check for leakage between the training and validation sets: duplicated " +
			"samples, a validation split taken after shuffling augmented data, or a label " +
			"that is encoded in the features.",
	},
	MissingActivations: {
		Title:       "Hidden layer has no activation",
		Explanation: "A hidden layer uses a linear activation, so it collapses into its neighbours and adds no expressive power.",
		Remediation: "Give hidden layers a non-linear activation:\n\n" +
			"`Dense(128, activation=\"relu\")`",
		Static: true,
	},
	NoSoftmax: {
		Title:       "Loss function expects normalized input",
		Explanation: "The loss expects a probability distribution, but the final layer produces raw scores (logits).",
		Remediation: "Either let the loss normalize for you:\n\n" +
			"`CategoricalCrossentropy(from_logits=True)`\n\n" +
			"or end the model with a softmax layer.",
		Static: true,
	},
}
