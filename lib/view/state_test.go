// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

func samplePayload() Payload {
	plots := telemetry.Plots{}
	for epoch, loss := range []float64{2.3, 1.1, 0.7, 0.9, 1.4, 1.9} {
		plots.Add("loss", "train", telemetry.Point{Epoch: epoch, Value: loss})
	}
	return Payload{
		Anomalies: []anomaly.Anomaly{
			{Kind: anomaly.InputNormalization, Epochs: anomaly.Epochs(3, 5)},
			anomaly.Static(anomaly.NoSoftmax, "final layer is linear"),
			{Kind: anomaly.Overfitting, Epochs: anomaly.Epochs(4)},
		},
		Plots: plots,
	}
}

func TestToggleIsAnInvolution(t *testing.T) {
	state := NewState()
	state.ApplyPoll(samplePayload())
	state.Toggle(2)

	beforeSelected := state.Selected()
	beforeRegions := state.Regions()

	if !state.Toggle(0) {
		t.Fatal("Toggle(0) did not select")
	}
	if state.Toggle(0) {
		t.Fatal("second Toggle(0) did not deselect")
	}
	if !slices.Equal(state.Selected(), beforeSelected) {
		t.Fatalf("Selected = %v, want %v", state.Selected(), beforeSelected)
	}
	if !slices.Equal(state.Regions(), beforeRegions) {
		t.Fatalf("Regions = %v, want %v", state.Regions(), beforeRegions)
	}
}

func TestRegions(t *testing.T) {
	state := NewState()
	state.ApplyPoll(samplePayload())
	state.Toggle(0)
	state.Toggle(1)

	want := []Highlight{
		{Index: 0, Region: anomaly.Region{From: 2, To: 3}},
		{Index: 0, Region: anomaly.Region{From: 4, To: 5}},
	}
	if got := state.Regions(); !slices.Equal(got, want) {
		t.Fatalf("Regions = %v, want %v", got, want)
	}

	annotations := state.Annotations()
	if len(annotations) != 2 {
		t.Fatalf("Annotations = %v, want 2", annotations)
	}
	static := annotations[1]
	if static.Index != 1 || !static.Static || len(static.Epochs) != 0 {
		t.Fatalf("static annotation = %+v, want selected with no epochs", static)
	}
	if !state.IsSelected(1) {
		t.Fatal("static anomaly not reported as selected")
	}
}

func TestToggleOutOfRange(t *testing.T) {
	state := NewState()
	state.ApplyPoll(samplePayload())
	version := state.Version()
	for _, i := range []int{-1, 3, 100} {
		if state.Toggle(i) {
			t.Fatalf("Toggle(%d) selected an index with no anomaly", i)
		}
	}
	if state.Version() != version {
		t.Fatalf("Version = %d, want %d after ignored toggles", state.Version(), version)
	}
}

func TestClear(t *testing.T) {
	state := NewState()
	state.ApplyPoll(samplePayload())
	state.Toggle(0)
	state.Toggle(2)
	state.Clear()
	if len(state.Selected()) != 0 || len(state.Regions()) != 0 {
		t.Fatalf("after Clear: selected %v regions %v", state.Selected(), state.Regions())
	}
	version := state.Version()
	state.Clear()
	if state.Version() != version {
		t.Fatal("clearing an empty selection bumped the version")
	}
}

func TestApplyPollEqualPayloadIsNoop(t *testing.T) {
	state := NewState()
	if !state.ApplyPoll(samplePayload()) {
		t.Fatal("first ApplyPoll reported no change")
	}
	state.Toggle(0)
	version := state.Version()
	annotations := state.Annotations()

	// A separately built payload with the same structure.
	if state.ApplyPoll(samplePayload()) {
		t.Fatal("ApplyPoll of an equal payload reported a change")
	}
	if state.Version() != version {
		t.Fatalf("Version = %d, want %d", state.Version(), version)
	}
	if got := state.Annotations(); len(got) != len(annotations) || !slices.Equal(got[0].Epochs, annotations[0].Epochs) {
		t.Fatalf("Annotations changed: %v", got)
	}
}

func TestApplyPollTreatsNegativeZeroAsZero(t *testing.T) {
	decode := func(body string) Payload {
		t.Helper()
		var plots telemetry.Plots
		if err := json.Unmarshal([]byte(body), &plots); err != nil {
			t.Fatalf("Unmarshal(%s): %v", body, err)
		}
		return Payload{Plots: plots}
	}
	state := NewState()
	state.ApplyPoll(decode(`{"loss": {"train": [[0, 1.5], [1, 0]]}}`))
	version := state.Version()
	if state.ApplyPoll(decode(`{"loss": {"train": [[0, 1.5], [1, -0.0]]}}`)) {
		t.Fatal("ApplyPoll treated -0 as a change")
	}
	if state.Version() != version {
		t.Fatalf("Version = %d, want %d", state.Version(), version)
	}
}

func TestApplyPollRebuildsAnnotations(t *testing.T) {
	state := NewState()
	state.ApplyPoll(samplePayload())
	state.Toggle(0)
	state.Toggle(2)

	updated := samplePayload()
	updated.Anomalies[0].Epochs = anomaly.Epochs(3, 5, 6)
	updated.Anomalies = updated.Anomalies[:2]
	version := state.Version()
	if !state.ApplyPoll(updated) {
		t.Fatal("ApplyPoll of a changed payload reported no change")
	}
	if state.Version() <= version {
		t.Fatalf("Version = %d, want > %d", state.Version(), version)
	}
	if got := state.Selected(); !slices.Equal(got, []int{0}) {
		t.Fatalf("Selected = %v, want [0] after index 2 disappeared", got)
	}
	if got := state.Annotations()[0].Epochs; !slices.Equal(got, anomaly.Epochs(3, 5, 6)) {
		t.Fatalf("annotation epochs = %v, want [3 5 6]", got)
	}
}

func TestFingerprint(t *testing.T) {
	first, err := FingerprintOf(samplePayload())
	if err != nil {
		t.Fatalf("FingerprintOf: %v", err)
	}
	second, _ := FingerprintOf(samplePayload())
	if first != second {
		t.Fatal("equal payloads have different fingerprints")
	}

	// Static (null) and empty epoch sets are different payloads.
	static := Payload{Anomalies: []anomaly.Anomaly{{Kind: anomaly.NoSoftmax}}}
	empty := Payload{Anomalies: []anomaly.Anomaly{{Kind: anomaly.NoSoftmax, Epochs: anomaly.EpochSet{}}}}
	staticPrint, _ := FingerprintOf(static)
	emptyPrint, _ := FingerprintOf(empty)
	if staticPrint == emptyPrint {
		t.Fatal("null and empty epochs share a fingerprint")
	}

	changed := samplePayload()
	changed.Plots.Add("loss", "val", telemetry.Point{Epoch: 0, Value: 2.5})
	changedPrint, _ := FingerprintOf(changed)
	if changedPrint == first {
		t.Fatal("adding a point did not change the fingerprint")
	}
	if len(first.String()) != 12 {
		t.Fatalf("String = %q, want 12 hex characters", first.String())
	}
}

func TestDistinctRegions(t *testing.T) {
	highlights := []Highlight{
		{Index: 1, Region: anomaly.Region{From: 4, To: 5}},
		{Index: 0, Region: anomaly.Region{From: 2, To: 3}},
		{Index: 0, Region: anomaly.Region{From: 4, To: 5}},
	}
	got := DistinctRegions(highlights)
	want := []anomaly.Region{{From: 2, To: 3}, {From: 4, To: 5}}
	if !slices.Equal(got, want) {
		t.Fatalf("DistinctRegions = %v, want %v", got, want)
	}
}
