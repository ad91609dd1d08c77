// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package throttle coalesces per-session status updates.
//
// Statusline hooks fire several times a second per session. A
// [Throttle] keeps only the newest event for each session and hands
// the full set to its consumer at most once per flush interval, and
// only when something changed. Sessions that stop reporting (the CLI
// exited or crashed) are evicted once their newest event is older than
// the stale threshold and reported as stale on the next flush.
package throttle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/asuku/lib/clock"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

const (
	DefaultFlushInterval = time.Second
	DefaultStaleAfter    = 10 * time.Minute
)

// FlushFunc receives the active sessions' newest events, sorted by
// session ID, and the IDs of sessions evicted since the last flush.
type FlushFunc func(active []ipcwire.StatusUpdateEvent, staleSessionIDs []string)

// Config configures a Throttle.
type Config struct {
	// Clock drives the flush ticker and staleness. Required.
	Clock clock.Clock

	// FlushInterval defaults to DefaultFlushInterval.
	FlushInterval time.Duration

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	// OnFlush receives each non-empty flush. Required.
	OnFlush FlushFunc

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Throttle is safe for concurrent use. Receive never blocks on the
// consumer.
type Throttle struct {
	clock         clock.Clock
	flushInterval time.Duration
	staleAfter    time.Duration
	onFlush       FlushFunc
	logger        *slog.Logger

	mu     sync.Mutex
	latest map[string]tracked
	dirty  bool

	stopOnce sync.Once
	stop     chan struct{}
}

// tracked is a session's newest event and the time staleness is
// measured from.
type tracked struct {
	event    ipcwire.StatusUpdateEvent
	lastSeen time.Time
}

// New creates a Throttle. Call Run to start flushing.
func New(config Config) *Throttle {
	if config.Clock == nil {
		panic("throttle.New: Clock is required")
	}
	if config.OnFlush == nil {
		panic("throttle.New: OnFlush is required")
	}
	if config.Logger == nil {
		panic("throttle.New: Logger is required")
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	return &Throttle{
		clock:         config.Clock,
		flushInterval: config.FlushInterval,
		staleAfter:    config.StaleAfter,
		onFlush:       config.OnFlush,
		logger:        config.Logger,
		latest:        make(map[string]tracked),
		stop:          make(chan struct{}),
	}
}

// Receive records event as its session's newest. Staleness is measured
// from the event's timestamp, or from the time of receipt when the
// hook sent none.
func (t *Throttle) Receive(event ipcwire.StatusUpdateEvent) {
	lastSeen := event.Timestamp
	if lastSeen.IsZero() {
		lastSeen = t.clock.Now()
	}
	t.mu.Lock()
	t.latest[event.SessionID] = tracked{event: event, lastSeen: lastSeen}
	t.dirty = true
	t.mu.Unlock()
}

// Run flushes every FlushInterval until ctx is cancelled or Stop is
// called. Always returns nil.
func (t *Throttle) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Flush()
		case <-t.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Flush evicts stale sessions and, if anything was received or evicted
// since the previous flush, calls OnFlush. Run calls Flush on every
// tick; callers may also call it directly.
func (t *Throttle) Flush() {
	cutoff := t.clock.Now().Add(-t.staleAfter)

	t.mu.Lock()
	var stale []string
	for sessionID, entry := range t.latest {
		if !entry.lastSeen.After(cutoff) {
			delete(t.latest, sessionID)
			stale = append(stale, sessionID)
		}
	}
	if !t.dirty && len(stale) == 0 {
		t.mu.Unlock()
		return
	}
	active := make([]ipcwire.StatusUpdateEvent, 0, len(t.latest))
	for _, entry := range t.latest {
		active = append(active, entry.event)
	}
	t.dirty = false
	t.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].SessionID < active[j].SessionID })
	sort.Strings(stale)
	if len(stale) > 0 {
		t.logger.Debug("evicted stale sessions", "sessions", stale)
	}
	t.onFlush(active, stale)
}
