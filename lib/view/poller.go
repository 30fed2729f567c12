// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/umlaut/lib/clock"
)

// DefaultPollInterval is the dashboard's refresh period.
const DefaultPollInterval = 10 * time.Second

// Fetcher retrieves the current payload.
type Fetcher func(ctx context.Context) (Payload, error)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Fetch is required.
	Fetch Fetcher

	// State receives every fetched payload. Required.
	State *State

	// Interval between ticks. Default: DefaultPollInterval.
	Interval time.Duration

	// OnChange is called from the fetch goroutine after a poll
	// changed the state, with the new version.
	OnChange func(version uint64)

	// OnError is called from the fetch goroutine when a fetch fails.
	OnError func(err error)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Poller refreshes a State on a fixed interval.
type Poller struct {
	config PollerConfig

	busy     atomic.Bool
	polls    atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
	inflight sync.WaitGroup

	// onSkip, when set, runs after each skipped tick.
	onSkip func()
}

// NewPoller validates config and fills defaults.
func NewPoller(config PollerConfig) (*Poller, error) {
	if config.Fetch == nil {
		return nil, errors.New("view: poller requires a Fetch function")
	}
	if config.State == nil {
		return nil, errors.New("view: poller requires a State")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{config: config}, nil
}

// Run polls once immediately and then on every tick until ctx is
// cancelled. It waits for an in-flight fetch before returning.
func (p *Poller) Run(ctx context.Context) {
	defer p.inflight.Wait()

	ticker := p.config.Clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.Poll(ctx)
	}
}

// Poll starts a fetch unless one is already running, in which case
// the request is counted as skipped. It reports whether a fetch was
// started.
func (p *Poller) Poll(ctx context.Context) bool {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.config.Logger.Debug("poll skipped, previous fetch still running")
		if p.onSkip != nil {
			p.onSkip()
		}
		return false
	}
	p.inflight.Go(func() {
		defer p.busy.Store(false)
		p.fetch(ctx)
	})
	return true
}

func (p *Poller) fetch(ctx context.Context) {
	p.polls.Add(1)
	payload, err := p.config.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.failures.Add(1)
		p.config.Logger.Warn("poll failed", "error", err)
		if p.config.OnError != nil {
			p.config.OnError(err)
		}
		return
	}
	if !p.config.State.ApplyPoll(payload) {
		return
	}
	version := p.config.State.Version()
	p.config.Logger.Debug("view state updated", "version", version)
	if p.config.OnChange != nil {
		p.config.OnChange(version)
	}
}

// PollerStats counts poller outcomes.
type PollerStats struct {
	Polls    uint64
	Skipped  uint64
	Failures uint64
}

// Stats returns the poller's counters.
func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Polls:    p.polls.Load(),
		Skipped:  p.skipped.Load(),
		Failures: p.failures.Load(),
	}
}
