// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

var (
	// ErrMalformedID is returned for a session id that is not a UUID.
	ErrMalformedID = errors.New("malformed session id")

	// ErrSessionNotFound is returned for a well-formed id with no
	// session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidName is returned for an empty or oversized session
	// name.
	ErrInvalidName = errors.New("invalid session name")
)

// MaxSessionNameLength bounds session names.
const MaxSessionNameLength = 256

// Store is the persistence contract the API server depends on.
type Store interface {
	// ResolveSession returns the id of the session named name,
	// creating it if none exists.
	ResolveSession(ctx context.Context, name string) (string, error)

	// ResolveUniqueSession creates a session under a disambiguated
	// form of name and returns its id.
	ResolveUniqueSession(ctx context.Context, name string) (string, error)

	// Session returns one session.
	Session(ctx context.Context, id string) (telemetry.Session, error)

	// Sessions lists every session, most recently modified first.
	Sessions(ctx context.Context) ([]telemetry.Session, error)

	// AppendPoints appends every point of update to its series.
	AppendPoints(ctx context.Context, id string, update telemetry.PlotUpdate) error

	// Plots returns every series of the session.
	Plots(ctx context.Context, id string) (telemetry.Plots, error)

	// MergeAnomalies folds anomalies into the session's records.
	MergeAnomalies(ctx context.Context, id string, anomalies []anomaly.Anomaly) error

	// Anomalies returns the session's records sorted by kind.
	Anomalies(ctx context.Context, id string) ([]anomaly.Anomaly, error)

	Close() error
}

// ParseID validates a session id and returns its canonical form.
func ParseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	return parsed.String(), nil
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxSessionNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxSessionNameLength)
	}
	return nil
}

// suffixPattern matches base and base_N for one base name.
func suffixPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(?:_(\d+))?$`)
}

// UniqueName returns the name a new session for base should take,
// given the names already in use. The bare base counts as suffix 0, so
// the first collision yields base_1. With no match at all the result
// is base itself.
func UniqueName(base string, existing []string) string {
	pattern := suffixPattern(base)
	highest := -1
	for _, name := range existing {
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		suffix := 0
		if match[1] != "" {
			parsed, err := strconv.Atoi(match[1])
			if err != nil {
				// Out of int range.
				continue
			}
			suffix = parsed
		}
		highest = max(highest, suffix)
	}
	if highest < 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, highest+1)
}
