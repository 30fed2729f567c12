// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.registered = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*waiter
	registered *sync.Cond
}

// waiter is a pending After, Sleep, or ticker.
type waiter struct {
	deadline time.Time
	channel  chan time.Time
	// period is non-zero for tickers, which re-arm after firing.
	period  time.Duration
	stopped bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot waiter.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&waiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic waiter.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &waiter{deadline: c.now.Add(d), channel: channel, period: d}
	c.addLocked(entry)
	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
		},
	}
}

// Sleep blocks until the clock has been advanced by at least d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves time forward by d and fires every waiter whose
// deadline has been reached, earliest first. A ticker whose interval
// fits several times into d fires once per interval, but its channel
// holds at most one undelivered tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.collectDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// collectDue removes due waiters from the pending list, re-arms
// tickers, and returns the waiters to fire in deadline order.
func (c *FakeClock) collectDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []*waiter
	remaining := c.pending[:0]
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
		case entry.deadline.After(target):
			remaining = append(remaining, entry)
		default:
			due = append(due, entry)
		}
	}
	slices.SortStableFunc(due, func(a, b *waiter) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, entry := range due {
		if entry.period > 0 {
			entry.deadline = entry.deadline.Add(entry.period)
			remaining = append(remaining, entry)
		}
	}
	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n waiters are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(entry *waiter) {
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			count++
		}
	}
	return count
}
