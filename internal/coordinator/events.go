// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/asuku/lib/clock"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// MaxRecentEvents is how many recent events are kept.
const MaxRecentEvents = 50

// EventKind classifies a RecentEvent.
type EventKind int

const (
	// EventPermissionResponse is a decision delivered to a hook.
	EventPermissionResponse EventKind = iota

	// EventNotification is a notification sent by a hook.
	EventNotification

	// EventTimeout is a request auto-denied by its timeout.
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventPermissionResponse:
		return "permissionResponse"
	case EventNotification:
		return "notification"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// RecentEvent is one entry of the activity feed.
type RecentEvent struct {
	// ID sorts in creation order.
	ID   ulid.ULID
	Kind EventKind
	Time time.Time

	// RequestID and Decision are set for permission responses and
	// timeouts; timeouts always carry Deny.
	RequestID string
	Decision  ipcwire.Decision

	SessionID string
	ToolName  string

	// Title and Body are set for notifications, already sanitized.
	Title string
	Body  string
}

// eventLog is a bounded newest-first list. Guarded by Coordinator.mu.
type eventLog struct {
	clock   clock.Clock
	entropy *ulid.MonotonicEntropy
	events  []RecentEvent
}

func newEventLog(clock clock.Clock) *eventLog {
	return &eventLog{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// add stamps event with an ID and time and prepends it.
func (l *eventLog) add(event RecentEvent) RecentEvent {
	now := l.clock.Now()
	id, err := ulid.New(ulid.Timestamp(now), l.entropy)
	if err != nil {
		id = ulid.Make()
	}
	event.ID = id
	event.Time = now

	l.events = append(l.events, RecentEvent{})
	copy(l.events[1:], l.events)
	l.events[0] = event
	if len(l.events) > MaxRecentEvents {
		l.events = l.events[:MaxRecentEvents]
	}
	return event
}

func (l *eventLog) snapshot() []RecentEvent {
	return append([]RecentEvent(nil), l.events...)
}

// RecentEvents returns up to MaxRecentEvents events, newest first.
func (c *Coordinator) RecentEvents() []RecentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.snapshot()
}

func (c *Coordinator) record(event RecentEvent) {
	c.mu.Lock()
	event = c.events.add(event)
	c.mu.Unlock()

	if c.observers.OnRecentEvent != nil {
		c.observers.OnRecentEvent(event)
	}
}
