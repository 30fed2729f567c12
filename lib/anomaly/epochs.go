// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anomaly

import (
	"slices"
)

// EpochSet is a sorted set of epoch numbers without duplicates. The
// nil EpochSet marks a static anomaly; a non-nil empty set is a
// per-epoch anomaly that has not been observed yet.
type EpochSet []int

// Epochs builds a non-nil EpochSet from arbitrary values.
func Epochs(values ...int) EpochSet {
	set := make(EpochSet, 0, len(values))
	set = append(set, values...)
	slices.Sort(set)
	return slices.Compact(set)
}

// IsStatic reports whether s is the static marker.
func (s EpochSet) IsStatic() bool { return s == nil }

// Contains reports whether epoch is in s.
func (s EpochSet) Contains(epoch int) bool {
	_, found := slices.BinarySearch(s, epoch)
	return found
}

// Union returns the set union of s and other. If either side is
// static the result is static.
func (s EpochSet) Union(other EpochSet) EpochSet {
	if s == nil || other == nil {
		return nil
	}
	merged := make(EpochSet, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	slices.Sort(merged)
	return slices.Compact(merged)
}

// Region is a half-open interval [From, To) on the epoch axis.
type Region struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Regions returns the chart regions highlighting each epoch in s: the
// interval leading up to the epoch, [e-1, e). Static sets have no
// regions.
func (s EpochSet) Regions() []Region {
	if len(s) == 0 {
		return nil
	}
	regions := make([]Region, len(s))
	for i, epoch := range s {
		regions[i] = Region{From: epoch - 1, To: epoch}
	}
	return regions
}
