// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

var epoch0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUniqueName(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		existing []string
		want     string
	}{
		{"fresh", "run", nil, "run"},
		{"unrelated", "run", []string{"walk", "running", "run_x"}, "run"},
		{"bare taken", "run", []string{"run"}, "run_1"},
		{"gap keeps max", "run", []string{"run", "run_1", "run_4"}, "run_5"},
		{"only suffixed", "run", []string{"run_2"}, "run_3"},
		{"regex metacharacters", "a.b", []string{"a.b", "axb_7"}, "a.b_1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := UniqueName(test.base, test.existing); got != test.want {
				t.Fatalf("UniqueName(%q, %v) = %q, want %q", test.base, test.existing, got, test.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	id := NewID()
	got, err := ParseID(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if got != id {
		t.Fatalf("ParseID(upper) = %q, want %q", got, id)
	}
	if _, err := ParseID("not-an-id"); !errors.Is(err, ErrMalformedID) {
		t.Fatalf("ParseID(garbage) error = %v, want ErrMalformedID", err)
	}
}

// testStore runs the behavioral contract every Store backend must
// satisfy. open returns a fresh, empty store driven by the given clock.
func testStore(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	t.Run("ResolveIsStable", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		first, err := store.ResolveSession(t.Context(), "mnist")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		second, err := store.ResolveSession(t.Context(), "mnist")
		if err != nil {
			t.Fatalf("ResolveSession again: %v", err)
		}
		if first != second {
			t.Fatalf("ResolveSession ids = %q, %q, want equal", first, second)
		}
		other, err := store.ResolveSession(t.Context(), "cifar")
		if err != nil {
			t.Fatalf("ResolveSession(cifar): %v", err)
		}
		if other == first {
			t.Fatal("different names resolved to the same id")
		}
	})

	t.Run("ResolveConcurrent", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		ids := make([]string, 8)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Go(func() {
				id, err := store.ResolveSession(t.Context(), "shared")
				if err != nil {
					t.Errorf("ResolveSession: %v", err)
				}
				ids[i] = id
			})
		}
		wg.Wait()
		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Fatalf("concurrent ResolveSession ids = %v, want all equal", ids)
			}
		}
	})

	t.Run("UniqueSuffixes", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		var names []string
		for range 3 {
			id, err := store.ResolveUniqueSession(t.Context(), "sweep")
			if err != nil {
				t.Fatalf("ResolveUniqueSession: %v", err)
			}
			session, err := store.Session(t.Context(), id)
			if err != nil {
				t.Fatalf("Session: %v", err)
			}
			names = append(names, session.Name)
		}
		want := []string{"sweep", "sweep_1", "sweep_2"}
		if !slices.Equal(names, want) {
			t.Fatalf("unique names = %v, want %v", names, want)
		}
	})

	t.Run("UniqueConcurrent", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		const workers = 6
		var wg sync.WaitGroup
		for range workers {
			wg.Go(func() {
				if _, err := store.ResolveUniqueSession(t.Context(), "race"); err != nil {
					t.Errorf("ResolveUniqueSession: %v", err)
				}
			})
		}
		wg.Wait()

		sessions, err := store.Sessions(t.Context())
		if err != nil {
			t.Fatalf("Sessions: %v", err)
		}
		seen := make(map[string]bool)
		for _, session := range sessions {
			if seen[session.Name] {
				t.Fatalf("duplicate session name %q", session.Name)
			}
			seen[session.Name] = true
		}
		if len(seen) != workers {
			t.Fatalf("got %d distinct names, want %d", len(seen), workers)
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		if _, err := store.ResolveSession(t.Context(), ""); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("ResolveSession(\"\") error = %v, want ErrInvalidName", err)
		}
		long := strings.Repeat("x", MaxSessionNameLength+1)
		if _, err := store.ResolveUniqueSession(t.Context(), long); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("ResolveUniqueSession(long) error = %v, want ErrInvalidName", err)
		}
	})

	t.Run("MissingAndMalformed", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		update := telemetry.PlotUpdate{"loss": {"loss": {Epoch: 1, Value: 0.5}}}
		if err := store.AppendPoints(t.Context(), "garbage", update); !errors.Is(err, ErrMalformedID) {
			t.Fatalf("AppendPoints(garbage) error = %v, want ErrMalformedID", err)
		}
		missing := NewID()
		if err := store.AppendPoints(t.Context(), missing, update); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("AppendPoints(missing) error = %v, want ErrSessionNotFound", err)
		}
		if _, err := store.Plots(t.Context(), missing); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("Plots(missing) error = %v, want ErrSessionNotFound", err)
		}
		if err := store.MergeAnomalies(t.Context(), missing, nil); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("MergeAnomalies(missing) error = %v, want ErrSessionNotFound", err)
		}
		if _, err := store.Anomalies(t.Context(), "nope"); !errors.Is(err, ErrMalformedID) {
			t.Fatalf("Anomalies(nope) error = %v, want ErrMalformedID", err)
		}
		if _, err := store.Session(t.Context(), missing); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("Session(missing) error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("AppendOrder", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		id, err := store.ResolveSession(t.Context(), "ordered")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		for epoch := 1; epoch <= 3; epoch++ {
			update := telemetry.PlotUpdate{
				"loss":     {"loss": {Epoch: epoch, Value: 1 / float64(epoch)}, "val_loss": {Epoch: epoch, Value: 2 / float64(epoch)}},
				"accuracy": {"acc": {Epoch: epoch, Value: 0.3 * float64(epoch)}},
			}
			if err := store.AppendPoints(t.Context(), id, update); err != nil {
				t.Fatalf("AppendPoints(%d): %v", epoch, err)
			}
		}
		plots, err := store.Plots(t.Context(), id)
		if err != nil {
			t.Fatalf("Plots: %v", err)
		}
		loss := plots["loss"]["loss"]
		if len(loss) != 3 {
			t.Fatalf("len(loss) = %d, want 3", len(loss))
		}
		for i, point := range loss {
			if point.Epoch != i+1 {
				t.Fatalf("loss[%d].Epoch = %d, want %d", i, point.Epoch, i+1)
			}
		}
		if got := plots["loss"]["val_loss"][2].Value; got != 2.0/3 {
			t.Fatalf("val_loss[2] = %v, want %v", got, 2.0/3)
		}
		if got := len(plots["accuracy"]["acc"]); got != 3 {
			t.Fatalf("len(acc) = %d, want 3", got)
		}
	})

	t.Run("AppendConcurrent", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		id, err := store.ResolveSession(t.Context(), "parallel")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		const writers, perWriter = 4, 10
		var wg sync.WaitGroup
		for writer := range writers {
			wg.Go(func() {
				series := fmt.Sprintf("w%d", writer)
				for epoch := range perWriter {
					update := telemetry.PlotUpdate{"shared": {series: {Epoch: epoch, Value: float64(epoch)}}}
					if err := store.AppendPoints(t.Context(), id, update); err != nil {
						t.Errorf("AppendPoints: %v", err)
						return
					}
				}
			})
		}
		wg.Wait()

		plots, err := store.Plots(t.Context(), id)
		if err != nil {
			t.Fatalf("Plots: %v", err)
		}
		for writer := range writers {
			points := plots["shared"][fmt.Sprintf("w%d", writer)]
			if len(points) != perWriter {
				t.Fatalf("writer %d has %d points, want %d", writer, len(points), perWriter)
			}
			for i, point := range points {
				if point.Epoch != i {
					t.Fatalf("writer %d point %d epoch = %d, want %d", writer, i, point.Epoch, i)
				}
			}
		}
	})

	t.Run("AnomalyUnion", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		id, err := store.ResolveSession(t.Context(), "anomalies")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		merge := func(items ...anomaly.Anomaly) {
			t.Helper()
			if err := store.MergeAnomalies(t.Context(), id, items); err != nil {
				t.Fatalf("MergeAnomalies: %v", err)
			}
		}
		reference := &anomaly.Location{Path: "train.py", Line: 12, Text: "lr = 0.5"}
		high := anomaly.At(anomaly.LearningRateHigh, 3, "")
		high.Reference = reference
		merge(high)
		merge(anomaly.At(anomaly.LearningRateHigh, 5, "lr=0.5"))
		merge(anomaly.At(anomaly.LearningRateHigh, 3, ""))
		merge(anomaly.Static(anomaly.NoSoftmax, "last layer is linear"))
		merge(anomaly.Static(anomaly.NoSoftmax, ""))

		got, err := store.Anomalies(t.Context(), id)
		if err != nil {
			t.Fatalf("Anomalies: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len(Anomalies) = %d, want 2: %+v", len(got), got)
		}
		byKind := map[anomaly.Kind]anomaly.Anomaly{got[0].Kind: got[0], got[1].Kind: got[1]}

		lr := byKind[anomaly.LearningRateHigh]
		if !slices.Equal(lr.Epochs, anomaly.Epochs(3, 5)) {
			t.Fatalf("lr_high epochs = %v, want [3 5]", lr.Epochs)
		}
		if lr.Remarks != "lr=0.5" {
			t.Fatalf("lr_high remarks = %q, want %q", lr.Remarks, "lr=0.5")
		}
		if lr.Reference == nil || *lr.Reference != *reference {
			t.Fatalf("lr_high reference = %+v, want %+v", lr.Reference, reference)
		}

		softmax := byKind[anomaly.NoSoftmax]
		if !softmax.IsStatic() {
			t.Fatalf("no_softmax epochs = %v, want static", softmax.Epochs)
		}
		if softmax.Remarks != "last layer is linear" {
			t.Fatalf("no_softmax remarks = %q, want the first non-empty value", softmax.Remarks)
		}
	})

	t.Run("StaticIsSticky", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		id, err := store.ResolveSession(t.Context(), "sticky")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		items := []anomaly.Anomaly{
			anomaly.At(anomaly.Overfitting, 4, ""),
			anomaly.Static(anomaly.Overfitting, ""),
			anomaly.At(anomaly.Overfitting, 6, ""),
		}
		for _, item := range items {
			if err := store.MergeAnomalies(t.Context(), id, []anomaly.Anomaly{item}); err != nil {
				t.Fatalf("MergeAnomalies: %v", err)
			}
		}
		got, err := store.Anomalies(t.Context(), id)
		if err != nil {
			t.Fatalf("Anomalies: %v", err)
		}
		if len(got) != 1 || !got[0].IsStatic() {
			t.Fatalf("Anomalies = %+v, want one static record", got)
		}
	})

	t.Run("SessionsByModification", func(t *testing.T) {
		clk := clock.Fake(epoch0)
		store := open(t, clk)
		older, err := store.ResolveSession(t.Context(), "older")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		clk.Advance(time.Second)
		newer, err := store.ResolveSession(t.Context(), "newer")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}

		sessions, err := store.Sessions(t.Context())
		if err != nil {
			t.Fatalf("Sessions: %v", err)
		}
		if len(sessions) != 2 || sessions[0].ID != newer {
			t.Fatalf("Sessions = %+v, want %s first", sessions, newer)
		}

		clk.Advance(time.Second)
		update := telemetry.PlotUpdate{"loss": {"loss": {Epoch: 0, Value: 1}}}
		if err := store.AppendPoints(t.Context(), older, update); err != nil {
			t.Fatalf("AppendPoints: %v", err)
		}
		sessions, err = store.Sessions(t.Context())
		if err != nil {
			t.Fatalf("Sessions: %v", err)
		}
		if sessions[0].ID != older {
			t.Fatalf("Sessions[0] = %s, want %s after write", sessions[0].ID, older)
		}
		if !sessions[0].ModifiedAt.Equal(epoch0.Add(2 * time.Second)) {
			t.Fatalf("ModifiedAt = %v, want %v", sessions[0].ModifiedAt, epoch0.Add(2*time.Second))
		}
		if !sessions[0].CreatedAt.Equal(epoch0) {
			t.Fatalf("CreatedAt = %v, want %v", sessions[0].CreatedAt, epoch0)
		}
	})

	t.Run("EmptySession", func(t *testing.T) {
		store := open(t, clock.Fake(epoch0))
		id, err := store.ResolveSession(t.Context(), "empty")
		if err != nil {
			t.Fatalf("ResolveSession: %v", err)
		}
		plots, err := store.Plots(t.Context(), id)
		if err != nil {
			t.Fatalf("Plots: %v", err)
		}
		if plots == nil || len(plots) != 0 {
			t.Fatalf("Plots = %v, want empty non-nil", plots)
		}
		anomalies, err := store.Anomalies(t.Context(), id)
		if err != nil {
			t.Fatalf("Anomalies: %v", err)
		}
		if anomalies == nil || len(anomalies) != 0 {
			t.Fatalf("Anomalies = %v, want empty non-nil", anomalies)
		}
	})
}
