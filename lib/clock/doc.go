// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets code that waits, times out, or stamps records be
// driven by a controllable clock in tests.
//
// Anything in umlaut that would call time.Now, time.After,
// time.NewTicker, or time.Sleep takes a [Clock] instead. Binaries pass
// [Real]. Tests pass [Fake], whose time moves only on
// [FakeClock.Advance]:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	poller := view.NewPoller(view.PollerConfig{Clock: fake, ...})
//	go poller.Run(ctx)
//	fake.WaitForTimers(1)          // the poller's ticker is registered
//	fake.Advance(10 * time.Second) // exactly one tick
//
// [FakeClock.WaitForTimers] closes the race between a goroutine
// registering a timer and the test advancing past it.
package clock
