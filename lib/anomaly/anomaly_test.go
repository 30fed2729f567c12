// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anomaly

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

func TestEpochsSortsAndDeduplicates(t *testing.T) {
	got := Epochs(5, 3, 5, 1)
	if !slices.Equal(got, EpochSet{1, 3, 5}) {
		t.Errorf("Epochs(5,3,5,1) = %v, want [1 3 5]", got)
	}
	if Epochs().IsStatic() {
		t.Error("Epochs() is static, want empty per-epoch set")
	}
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name  string
		left  EpochSet
		right EpochSet
		want  EpochSet
	}{
		{"disjoint", Epochs(3), Epochs(5), EpochSet{3, 5}},
		{"overlapping", Epochs(1, 2, 3), Epochs(2, 4), EpochSet{1, 2, 3, 4}},
		{"empty", Epochs(), Epochs(7), EpochSet{7}},
		{"static left", nil, Epochs(2), nil},
		{"static right", Epochs(2), nil, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.left.Union(test.right)
			if test.want == nil {
				if got != nil {
					t.Errorf("Union = %v, want static", got)
				}
				return
			}
			if !slices.Equal(got, test.want) {
				t.Errorf("Union = %v, want %v", got, test.want)
			}
		})
	}
}

func TestRegions(t *testing.T) {
	regions := Epochs(3, 5).Regions()
	want := []Region{{From: 2, To: 3}, {From: 4, To: 5}}
	if !slices.Equal(regions, want) {
		t.Errorf("Regions() = %v, want %v", regions, want)
	}
	if EpochSet(nil).Regions() != nil {
		t.Error("static Regions() != nil")
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(string(kind))
		if err != nil || parsed != kind {
			t.Errorf("ParseKind(%q) = %q, %v", kind, parsed, err)
		}
	}
	if parsed, err := ParseKind("nan_loss"); err != nil || parsed != NaNInput {
		t.Errorf("ParseKind(nan_loss) = %q, %v, want nan_input", parsed, err)
	}
	if _, err := ParseKind("gradient_explosion"); err == nil {
		t.Error("ParseKind(gradient_explosion) succeeded, want error")
	}
}

func TestStaticKinds(t *testing.T) {
	for _, kind := range Kinds() {
		want := kind == MissingActivations || kind == NoSoftmax
		if got := kind.IsStatic(); got != want {
			t.Errorf("%s.IsStatic() = %v, want %v", kind, got, want)
		}
	}
}

func TestMerge(t *testing.T) {
	first := At(InputNormalization, 3, "min -250")
	second := At(InputNormalization, 5, "min -300")
	merged := first.Merge(second)
	if !slices.Equal(merged.Epochs, EpochSet{3, 5}) {
		t.Errorf("merged epochs = %v, want [3 5]", merged.Epochs)
	}
	if merged.Remarks != "min -300" {
		t.Errorf("merged remarks = %q, want last write", merged.Remarks)
	}

	kept := second.Merge(Anomaly{Kind: InputNormalization, Epochs: Epochs(6)})
	if kept.Remarks != "min -300" {
		t.Errorf("empty remark overwrote earlier one: %q", kept.Remarks)
	}
}

func TestJSONDistinguishesStatic(t *testing.T) {
	data, err := json.Marshal(Static(NoSoftmax, ""))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"epochs":null`) {
		t.Errorf("static anomaly JSON = %s, want epochs null", data)
	}

	var decoded Anomaly
	if err := json.Unmarshal([]byte(`{"kind":"overfitting","epochs":[4]}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.IsStatic() || !decoded.Epochs.Contains(4) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestFormat(t *testing.T) {
	text := Format(Anomaly{
		Kind:      InputNormalization,
		Epochs:    Epochs(3),
		Remarks:   "The minimum input value is -250.",
		Reference: &Location{Path: "train.go", Line: 42, Text: "x := load()"},
	})
	for _, want := range []string{
		"Input data exceeds typical limits",
		"The minimum input value is -250.",
		"Solution:",
		"See train.go:42: x := load()",
		"Captured at epochs [3].",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Format output missing %q:\n%s", want, text)
		}
	}

	static := Format(Static(NoSoftmax, ""))
	if !strings.Contains(static, "Captured before start of training.") {
		t.Errorf("static Format output:\n%s", static)
	}
}

func TestDescribeUnknownKind(t *testing.T) {
	entry := Describe(Kind("future_kind"))
	if !strings.Contains(entry.Title, "future_kind") {
		t.Errorf("Describe(unknown).Title = %q", entry.Title)
	}
}
