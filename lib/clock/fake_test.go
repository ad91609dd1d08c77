// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockAdvanceMovesNow(t *testing.T) {
	clock := Fake(epoch)
	clock.Advance(5 * time.Second)
	if got, want := clock.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFunc(t *testing.T) {
	clock := Fake(epoch)
	var calls atomic.Int32
	clock.AfterFunc(3*time.Second, func() { calls.Add(1) })

	clock.Advance(2 * time.Second)
	if calls.Load() != 0 {
		t.Fatal("callback ran before its deadline")
	}
	clock.Advance(time.Second)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d after deadline, want 1", calls.Load())
	}
	clock.Advance(time.Hour)
	if calls.Load() != 1 {
		t.Fatalf("one-shot timer fired %d times", calls.Load())
	}
}

func TestFakeClockAfterFuncNonPositiveRunsInline(t *testing.T) {
	clock := Fake(epoch)
	ran := false
	timer := clock.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc(0) did not run the callback before returning")
	}
	if timer.Stop() {
		t.Error("Stop on an already-run timer returned true")
	}
	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", clock.PendingCount())
	}
}

func TestFakeClockTimerStop(t *testing.T) {
	clock := Fake(epoch)
	var calls atomic.Int32
	timer := clock.AfterFunc(time.Second, func() { calls.Add(1) })

	if !timer.Stop() {
		t.Fatal("first Stop returned false")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
	clock.Advance(time.Minute)
	if calls.Load() != 0 {
		t.Error("stopped timer fired")
	}
	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", clock.PendingCount())
	}
}

func TestFakeClockCallbacksFireInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []int
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	clock.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestFakeClockCallbackMaySchedule(t *testing.T) {
	clock := Fake(epoch)
	var fired []time.Time
	clock.AfterFunc(time.Second, func() {
		fired = append(fired, clock.Now())
		clock.AfterFunc(time.Second, func() { fired = append(fired, clock.Now()) })
	})

	clock.Advance(time.Second)
	if len(fired) != 1 {
		t.Fatalf("fired %d callbacks after 1s, want 1", len(fired))
	}
	clock.Advance(time.Second)
	if len(fired) != 2 {
		t.Fatalf("fired %d callbacks after 2s, want 2", len(fired))
	}
}

func TestFakeClockTicker(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)

	clock.Advance(time.Second)
	select {
	case tick := <-ticker.C:
		if !tick.Equal(epoch.Add(time.Second)) {
			t.Errorf("tick = %v", tick)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	// Three intervals at once: the buffer holds one tick, the rest drop.
	clock.Advance(3 * time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticker buffered more than one tick")
	default:
	}

	ticker.Stop()
	clock.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClockTickerPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	registered := make(chan struct{})
	go func() {
		clock.AfterFunc(time.Second, func() {})
		close(registered)
	}()
	clock.WaitForTimers(1)
	<-registered
	if clock.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", clock.PendingCount())
	}
}

func TestFakeClockConcurrentUse(t *testing.T) {
	clock := Fake(epoch)
	var calls atomic.Int32
	var group sync.WaitGroup
	for i := 0; i < 20; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			clock.AfterFunc(time.Second, func() { calls.Add(1) })
			clock.Now()
		}()
	}
	group.Wait()
	clock.Advance(time.Second)
	if calls.Load() != 20 {
		t.Errorf("calls = %d, want 20", calls.Load())
	}
}

func TestClockImplementations(t *testing.T) {
	var _ Clock = Real()
	var _ Clock = Fake(epoch)
}
