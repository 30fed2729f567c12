// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anomaly

import "fmt"

// Kind identifies a class of anomaly. The zero value is invalid.
type Kind string

const (
	InputNormalization Kind = "input_normalization"
	InputNotFloating   Kind = "input_not_floating"
	InputWrongShape    Kind = "input_wrong_shape"
	NaNInput           Kind = "nan_input"
	LearningRateHigh   Kind = "lr_high"
	LearningRateLow    Kind = "lr_low"
	Overfitting        Kind = "overfitting"
	OverconfidentVal   Kind = "overconfident_val"
	MissingActivations Kind = "missing_activations"
	NoSoftmax          Kind = "no_softmax"
)

// kindAliases maps wire names used by older clients to current kinds.
var kindAliases = map[string]Kind{
	"nan_loss": NaNInput,
}

// Kinds returns every valid kind in catalog order.
func Kinds() []Kind {
	return []Kind{
		InputNormalization,
		InputNotFloating,
		InputWrongShape,
		NaNInput,
		LearningRateHigh,
		LearningRateLow,
		Overfitting,
		OverconfidentVal,
		MissingActivations,
		NoSoftmax,
	}
}

// ParseKind validates a wire name and returns its Kind.
func ParseKind(name string) (Kind, error) {
	kind := Kind(name)
	if _, ok := catalog[kind]; ok {
		return kind, nil
	}
	if alias, ok := kindAliases[name]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown anomaly kind %q", name)
}

// Valid reports whether k is one of [Kinds].
func (k Kind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// IsStatic reports whether k is detected once before training rather
// than per epoch.
func (k Kind) IsStatic() bool {
	return catalog[k].Static
}

func (k Kind) String() string { return string(k) }
