// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/asuku/lib/clock"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/testutil"
)

var testEpoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type flush struct {
	active []ipcwire.StatusUpdateEvent
	stale  []string
}

func newTestThrottle(t *testing.T) (*Throttle, *clock.FakeClock, chan flush) {
	t.Helper()
	fake := clock.Fake(testEpoch)
	flushes := make(chan flush, 10)
	throttle := New(Config{
		Clock:   fake,
		OnFlush: func(active []ipcwire.StatusUpdateEvent, stale []string) { flushes <- flush{active, stale} },
		Logger:  testutil.Logger(),
	})
	return throttle, fake, flushes
}

func statusEvent(sessionID string, timestamp time.Time, cwd string) ipcwire.StatusUpdateEvent {
	return ipcwire.StatusUpdateEvent{
		SessionID:  sessionID,
		Statusline: ipcwire.StatuslineData{Cwd: &cwd},
		Timestamp:  timestamp,
	}
}

func TestFlushKeepsLatestPerSession(t *testing.T) {
	throttle, _, flushes := newTestThrottle(t)
	throttle.Receive(statusEvent("s1", testEpoch, "/first"))
	throttle.Receive(statusEvent("s1", testEpoch, "/second"))
	throttle.Receive(statusEvent("s2", testEpoch, "/other"))

	throttle.Flush()
	got := testutil.RequireReceive(t, flushes, time.Second, "flush")
	if len(got.active) != 2 {
		t.Fatalf("active = %d events, want 2", len(got.active))
	}
	if got.active[0].SessionID != "s1" || *got.active[0].Statusline.Cwd != "/second" {
		t.Errorf("s1 event = %+v, want the latest (/second)", got.active[0])
	}
	if len(got.stale) != 0 {
		t.Errorf("stale = %v, want none", got.stale)
	}
}

func TestFlushWithoutChangesIsNoop(t *testing.T) {
	throttle, _, flushes := newTestThrottle(t)
	throttle.Flush()
	testutil.RequireNoReceive(t, flushes, 20*time.Millisecond, "flush of empty throttle")

	throttle.Receive(statusEvent("s1", testEpoch, "/a"))
	throttle.Flush()
	testutil.RequireReceive(t, flushes, time.Second, "first flush")
	throttle.Flush()
	testutil.RequireNoReceive(t, flushes, 20*time.Millisecond, "flush without changes")
}

func TestStaleSessionsEvicted(t *testing.T) {
	throttle, fake, flushes := newTestThrottle(t)
	throttle.Receive(statusEvent("quiet", testEpoch, "/q"))
	throttle.Flush()
	testutil.RequireReceive(t, flushes, time.Second, "initial flush")

	fake.Advance(DefaultStaleAfter - time.Second)
	throttle.Receive(statusEvent("busy", fake.Now(), "/b"))
	fake.Advance(2 * time.Second)
	throttle.Flush()

	got := testutil.RequireReceive(t, flushes, time.Second, "eviction flush")
	if len(got.stale) != 1 || got.stale[0] != "quiet" {
		t.Errorf("stale = %v, want [quiet]", got.stale)
	}
	if len(got.active) != 1 || got.active[0].SessionID != "busy" {
		t.Errorf("active = %+v, want only busy", got.active)
	}

	// Evicted sessions stay gone.
	throttle.Receive(statusEvent("busy", fake.Now(), "/b2"))
	throttle.Flush()
	got = testutil.RequireReceive(t, flushes, time.Second, "next flush")
	for _, event := range got.active {
		if event.SessionID == "quiet" {
			t.Error("evicted session reappeared in active set")
		}
	}
	if len(got.stale) != 0 {
		t.Errorf("stale = %v on the following flush, want none", got.stale)
	}
}

func TestEvictionAloneTriggersFlush(t *testing.T) {
	throttle, fake, flushes := newTestThrottle(t)
	throttle.Receive(statusEvent("s1", testEpoch, "/a"))
	throttle.Flush()
	testutil.RequireReceive(t, flushes, time.Second, "initial flush")

	fake.Advance(DefaultStaleAfter + time.Second)
	throttle.Flush()
	got := testutil.RequireReceive(t, flushes, time.Second, "eviction flush")
	if len(got.active) != 0 || len(got.stale) != 1 {
		t.Errorf("flush = %+v, want no active and one stale", got)
	}
}

func TestZeroTimestampUsesReceiptTime(t *testing.T) {
	throttle, fake, flushes := newTestThrottle(t)
	fake.Advance(time.Hour)
	throttle.Receive(statusEvent("s1", time.Time{}, "/a"))
	throttle.Flush()

	got := testutil.RequireReceive(t, flushes, time.Second, "flush")
	if len(got.active) != 1 || len(got.stale) != 0 {
		t.Errorf("flush = %+v, want the session active", got)
	}
}

func TestRunFlushesOnTicker(t *testing.T) {
	throttle, fake, flushes := newTestThrottle(t)
	done := make(chan error, 1)
	go func() { done <- throttle.Run(context.Background()) }()
	fake.WaitForTimers(1)

	throttle.Receive(statusEvent("s1", testEpoch, "/a"))
	fake.Advance(DefaultFlushInterval)
	got := testutil.RequireReceive(t, flushes, 5*time.Second, "ticker flush")
	if len(got.active) != 1 {
		t.Errorf("active = %d, want 1", len(got.active))
	}

	throttle.Stop()
	throttle.Stop()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run to return"); err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	throttle, fake, _ := newTestThrottle(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- throttle.Run(ctx) }()
	fake.WaitForTimers(1)

	cancel()
	testutil.RequireReceive(t, done, 5*time.Second, "Run to return")
}
