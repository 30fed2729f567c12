// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

// Payload is what one poll fetches for a session.
type Payload struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
	Plots     telemetry.Plots   `json:"plots"`
}

// Annotation links a selected anomaly to the epochs it highlights.
// Epochs is empty for a static anomaly, which is shown as selected
// but highlights nothing.
type Annotation struct {
	Index  int
	Kind   anomaly.Kind
	Static bool
	Epochs anomaly.EpochSet
}

// Highlight is one shaded chart region contributed by the anomaly at
// Index.
type Highlight struct {
	Index  int
	Region anomaly.Region
}

// State is the dashboard's view state. It is safe for concurrent use;
// the poller applies payloads while the UI reads.
type State struct {
	mu sync.Mutex

	payload        Payload
	fingerprint    Fingerprint
	hasFingerprint bool

	selected    map[int]struct{}
	annotations []Annotation
	version     uint64
}

// NewState returns a State with no payload and nothing selected.
func NewState() *State {
	return &State{selected: make(map[int]struct{})}
}

// Toggle selects index i, or deselects it if it is already selected.
// Indices outside the current anomaly list are ignored. It reports
// whether i is selected afterwards.
func (s *State) Toggle(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.payload.Anomalies) {
		return false
	}
	_, wasSelected := s.selected[i]
	if wasSelected {
		delete(s.selected, i)
	} else {
		s.selected[i] = struct{}{}
	}
	s.rebuildLocked()
	return !wasSelected
}

// Clear empties the selection.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return
	}
	clear(s.selected)
	s.rebuildLocked()
}

// ApplyPoll installs a freshly polled payload. A payload with the same
// fingerprint as the current one is a no-op and returns false.
// Otherwise the payload replaces the current one, selections that no
// longer index an anomaly are dropped, annotations are rebuilt, and
// ApplyPoll returns true. Points decoded from the wire carry +0 for
// -0, so a payload that repeats a zero value fingerprints the same.
func (s *State) ApplyPoll(payload Payload) bool {
	fingerprint, err := FingerprintOf(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.hasFingerprint && fingerprint == s.fingerprint {
		return false
	}
	s.payload = payload
	s.fingerprint = fingerprint
	// An unencodable payload never compares equal, so the next poll
	// replaces it.
	s.hasFingerprint = err == nil
	for i := range s.selected {
		if i >= len(payload.Anomalies) {
			delete(s.selected, i)
		}
	}
	s.rebuildLocked()
	return true
}

// rebuildLocked recomputes annotations from the payload and selection
// and bumps the version. Caller holds s.mu.
func (s *State) rebuildLocked() {
	indices := make([]int, 0, len(s.selected))
	for i := range s.selected {
		indices = append(indices, i)
	}
	slices.Sort(indices)

	annotations := make([]Annotation, 0, len(indices))
	for _, i := range indices {
		item := s.payload.Anomalies[i]
		annotation := Annotation{Index: i, Kind: item.Kind, Static: item.IsStatic()}
		if !annotation.Static {
			annotation.Epochs = slices.Clone(item.Epochs)
		}
		annotations = append(annotations, annotation)
	}
	s.annotations = annotations
	s.version++
}

// Version counts derived-state mutations.
func (s *State) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Payload returns the current payload. Callers must not modify it.
func (s *State) Payload() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// Fingerprint returns the current payload's fingerprint and whether
// one has been computed.
func (s *State) Fingerprint() (Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint, s.hasFingerprint
}

// IsSelected reports whether index i is selected.
func (s *State) IsSelected(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[i]
	return ok
}

// Selected returns the selected indices in ascending order.
func (s *State) Selected() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, len(s.annotations))
	for i, annotation := range s.annotations {
		indices[i] = annotation.Index
	}
	return indices
}

// Annotations returns one annotation per selected anomaly, ordered by
// index.
func (s *State) Annotations() []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.annotations)
}

// Regions returns the highlighted regions of every selected non-static
// anomaly: one [e-1, e) interval per epoch.
func (s *State) Regions() []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	var highlights []Highlight
	for _, annotation := range s.annotations {
		for _, region := range annotation.Epochs.Regions() {
			highlights = append(highlights, Highlight{Index: annotation.Index, Region: region})
		}
	}
	return highlights
}

// ChartRegions returns the distinct regions of [State.Regions] sorted
// by start, ready for a chart.
func (s *State) ChartRegions() []anomaly.Region {
	return DistinctRegions(s.Regions())
}

// DistinctRegions drops duplicate regions contributed by more than one
// anomaly and sorts the rest by start.
func DistinctRegions(highlights []Highlight) []anomaly.Region {
	regions := make([]anomaly.Region, 0, len(highlights))
	for _, highlight := range highlights {
		regions = append(regions, highlight.Region)
	}
	slices.SortFunc(regions, func(a, b anomaly.Region) int {
		if a.From != b.From {
			return a.From - b.From
		}
		return a.To - b.To
	})
	return slices.Compact(regions)
}
