// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/testutil"
)

// blockingFetch hands control of every fetch to the test: each call
// announces itself on started and returns whatever arrives on results.
type blockingFetch struct {
	started chan struct{}
	results chan fetchResult
}

type fetchResult struct {
	payload Payload
	err     error
}

func newBlockingFetch() *blockingFetch {
	return &blockingFetch{
		started: make(chan struct{}, 8),
		results: make(chan fetchResult),
	}
}

func (f *blockingFetch) fetch(ctx context.Context) (Payload, error) {
	f.started <- struct{}{}
	select {
	case result := <-f.results:
		return result.payload, result.err
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	}
}

func TestPollerSkipsBusyTicks(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	state := NewState()
	fetcher := newBlockingFetch()
	changed := make(chan uint64, 8)
	skipped := make(chan struct{}, 8)

	poller, err := NewPoller(PollerConfig{
		Fetch:    fetcher.fetch,
		State:    state,
		Clock:    clk,
		OnChange: func(version uint64) { changed <- version },
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	poller.onSkip = func() { skipped <- struct{}{} }

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	clk.WaitForTimers(1)
	testutil.RequireReceive(t, fetcher.started, 5*time.Second, "initial poll")

	// The initial fetch is still running: this tick is skipped.
	clk.Advance(DefaultPollInterval)
	testutil.RequireReceive(t, skipped, 5*time.Second, "skipped tick")

	fetcher.results <- fetchResult{payload: samplePayload()}
	version := testutil.RequireReceive(t, changed, 5*time.Second, "state change")

	// The next tick fetches an identical payload: nothing changes.
	clk.Advance(DefaultPollInterval)
	testutil.RequireReceive(t, fetcher.started, 5*time.Second, "second poll")
	fetcher.results <- fetchResult{payload: samplePayload()}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "poller exit")

	select {
	case got := <-changed:
		t.Fatalf("unchanged poll notified version %d", got)
	default:
	}
	if state.Version() != version {
		t.Fatalf("Version = %d, want %d", state.Version(), version)
	}
	stats := poller.Stats()
	if stats.Polls != 2 || stats.Skipped != 1 || stats.Failures != 0 {
		t.Fatalf("Stats = %+v, want 2 polls and 1 skip", stats)
	}
}

func TestPollerReportsFailures(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fetcher := newBlockingFetch()
	failures := make(chan error, 1)

	poller, err := NewPoller(PollerConfig{
		Fetch:   fetcher.fetch,
		State:   NewState(),
		Clock:   clk,
		OnError: func(err error) { failures <- err },
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	testutil.RequireReceive(t, fetcher.started, 5*time.Second, "initial poll")
	fetcher.results <- fetchResult{err: errors.New("connection refused")}
	got := testutil.RequireReceive(t, failures, 5*time.Second, "failure callback")
	if got.Error() != "connection refused" {
		t.Fatalf("OnError got %v", got)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "poller exit")
	if poller.Stats().Failures != 1 {
		t.Fatalf("Failures = %d, want 1", poller.Stats().Failures)
	}
}

func TestNewPollerRequiresFetchAndState(t *testing.T) {
	if _, err := NewPoller(PollerConfig{State: NewState()}); err == nil {
		t.Error("NewPoller without Fetch succeeded")
	}
	if _, err := NewPoller(PollerConfig{Fetch: newBlockingFetch().fetch}); err == nil {
		t.Error("NewPoller without State succeeded")
	}
}
