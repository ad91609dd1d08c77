// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets timer-driven components run against a fake time
// source in tests.
//
// The pending request store schedules one timeout per request and the
// status throttle flushes on a ticker. Both take a [Clock]; production
// wires [Real], tests wire [Fake] and drive time with
// [FakeClock.Advance]:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := pending.New(pending.Config{Clock: fake, ...})
//	store.Add(event, responder, &timeout)
//	fake.WaitForTimers(1)
//	fake.Advance(timeout) // the timeout callback runs here
package clock

import "time"

// Clock is the subset of the time package the daemon schedules with.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed and returns a Timer that
	// can cancel the call. If d <= 0, f runs immediately: in a new
	// goroutine for Real, synchronously for Fake. Callers must not
	// hold locks that f acquires.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on the returned Ticker's C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. Returns false if f already ran or the timer
// was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks. C has capacity 1; ticks the consumer
// misses are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
