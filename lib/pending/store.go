// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pending holds permission requests that are waiting for a
// decision.
//
// A [Store] maps request IDs to [Request] entries and owns one timeout
// timer per entry. Every entry leaves the store exactly once: through
// [Store.Resolve] (a reply is sent), [Store.Remove] (the hook went
// away, nothing is sent), or its timeout (a deny is sent and OnTimeout
// is called). Whichever happens first wins; the others find no entry
// and do nothing.
//
// All state is guarded by one mutex held only for map and timer
// bookkeeping. Replies and callbacks run after the lock is released,
// so a slow hook connection or a callback that re-enters the store
// cannot stall other requests.
//
// Each scheduled timer carries the generation of the entry it was
// scheduled for. A timer that fires after its entry was resolved,
// removed, replaced, or rescheduled finds a different generation (or
// no entry) and is a no-op.
package pending

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/asuku/lib/clock"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// Config configures a Store.
type Config struct {
	// Clock schedules timeouts. Required.
	Clock clock.Clock

	// OnTimeout is called with the request ID after a timed-out
	// request has been auto-denied. Optional.
	OnTimeout func(requestID string)

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Store is the set of pending permission requests. Safe for concurrent
// use.
type Store struct {
	clock     clock.Clock
	onTimeout func(string)
	logger    *slog.Logger

	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64
}

type entry struct {
	request    Request
	timer      *clock.Timer
	generation uint64
}

// expiry identifies a timeout that must fire once the lock is
// released.
type expiry struct {
	requestID  string
	generation uint64
}

// New creates an empty Store.
func New(config Config) *Store {
	if config.Clock == nil {
		panic("pending.New: Clock is required")
	}
	if config.Logger == nil {
		panic("pending.New: Logger is required")
	}
	return &Store{
		clock:     config.Clock,
		onTimeout: config.OnTimeout,
		logger:    config.Logger,
		entries:   make(map[string]*entry),
	}
}

// Add inserts a request for event. If timeout is non-nil, the request
// is auto-denied once it elapses; a timeout <= 0 denies it before Add
// returns. An existing entry with the same request ID is replaced and
// its timer cancelled; its responder is dropped without a reply.
func (s *Store) Add(event ipcwire.PermissionRequestEvent, responder Responder, timeout *time.Duration) {
	s.mu.Lock()
	if previous := s.entries[event.RequestID]; previous != nil {
		stopTimer(previous)
		s.logger.Warn("replacing pending request with duplicate ID", "request_id", event.RequestID)
	}
	current := &entry{
		request: Request{
			ID:        event.RequestID,
			Event:     event,
			Responder: responder,
			CreatedAt: s.clock.Now(),
			Timeout:   copyDuration(timeout),
		},
		generation: s.nextGeneration(),
	}
	s.entries[event.RequestID] = current

	var due []expiry
	if timeout != nil {
		if !s.scheduleLocked(current, *timeout) {
			due = append(due, expiry{event.RequestID, current.generation})
		}
	}
	s.mu.Unlock()

	s.logger.Debug("pending request added",
		"request_id", event.RequestID,
		"session_id", event.SessionID,
		"tool", event.ToolName,
	)
	s.expireAll(due)
}

// Resolve sends decision for requestID and removes the entry. Returns
// false, sending nothing, if no such request is pending.
func (s *Store) Resolve(requestID string, decision ipcwire.Decision) bool {
	taken := s.take(requestID, 0)
	if taken == nil {
		return false
	}
	s.send(taken, decision)
	return true
}

// Remove drops requestID without sending a reply. Used when the hook's
// connection closed first.
func (s *Store) Remove(requestID string) {
	if s.take(requestID, 0) != nil {
		s.logger.Debug("pending request removed", "request_id", requestID)
	}
}

// Get returns the pending request with the given ID.
func (s *Store) Get(requestID string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[requestID]
	if !ok {
		return Request{}, false
	}
	return current.request.snapshot(), true
}

// PendingRequests returns every pending request ordered by CreatedAt,
// oldest first.
func (s *Store) PendingRequests() []Request {
	s.mu.Lock()
	requests := make([]Request, 0, len(s.entries))
	for _, current := range s.entries {
		requests = append(requests, current.request.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests
}

// PendingCount returns the number of pending requests.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RescheduleTimeouts applies a new timeout to every pending request.
// All existing timers are cancelled. With a nil timeout no timers are
// recreated and every request becomes non-expiring. Otherwise each
// request gets a timer for whatever remains of the new timeout
// measured from its CreatedAt; requests already past it are denied
// before RescheduleTimeouts returns.
func (s *Store) RescheduleTimeouts(timeout *time.Duration) {
	s.mu.Lock()
	var due []expiry
	for requestID, current := range s.entries {
		stopTimer(current)
		current.generation = s.nextGeneration()
		current.request.Timeout = copyDuration(timeout)
		if timeout == nil {
			continue
		}
		remaining := *timeout - s.clock.Now().Sub(current.request.CreatedAt)
		if !s.scheduleLocked(current, remaining) {
			due = append(due, expiry{requestID, current.generation})
		}
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Debug("pending timeouts rescheduled", "count", count, "timeout", durationAttr(timeout))
	s.expireAll(due)
}

// Shutdown cancels every timer and empties the store without sending
// any replies. The owner closes the connections separately.
func (s *Store) Shutdown() {
	s.mu.Lock()
	for requestID, current := range s.entries {
		stopTimer(current)
		delete(s.entries, requestID)
	}
	s.mu.Unlock()
}

// scheduleLocked starts current's timer for d. Returns false without
// scheduling when d <= 0: the caller must expire the entry after
// releasing the lock, because a clock may run a non-positive AfterFunc
// inline. Must be called with s.mu held.
func (s *Store) scheduleLocked(current *entry, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	requestID := current.request.ID
	generation := current.generation
	current.timer = s.clock.AfterFunc(d, func() {
		s.expire(requestID, generation)
	})
	return true
}

func (s *Store) expireAll(due []expiry) {
	for _, item := range due {
		s.expire(item.requestID, item.generation)
	}
}

// expire auto-denies requestID if the entry is still the one the timer
// was scheduled for.
func (s *Store) expire(requestID string, generation uint64) {
	taken := s.take(requestID, generation)
	if taken == nil {
		return
	}
	s.logger.Info("pending request timed out", "request_id", requestID)
	s.send(taken, ipcwire.Deny)
	if s.onTimeout != nil {
		s.onTimeout(requestID)
	}
}

// take removes and returns the entry for requestID, stopping its
// timer. A non-zero generation must match the entry's; generation 0
// matches any entry.
func (s *Store) take(requestID string, generation uint64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[requestID]
	if !ok {
		return nil
	}
	if generation != 0 && current.generation != generation {
		return nil
	}
	delete(s.entries, requestID)
	stopTimer(current)
	return current
}

func (s *Store) send(taken *entry, decision ipcwire.Decision) {
	response := ipcwire.NewResponse(taken.request.ID, decision)
	if err := taken.request.Responder.Send(response); err != nil {
		s.logger.Warn("sending decision failed",
			"request_id", taken.request.ID,
			"decision", decision,
			"error", err,
		)
	}
}

// nextGeneration must be called with s.mu held. Generations start at
// 1 so that 0 can mean "any".
func (s *Store) nextGeneration() uint64 {
	s.generation++
	return s.generation
}

func stopTimer(current *entry) {
	if current.timer != nil {
		current.timer.Stop()
		current.timer = nil
	}
}

// snapshot returns a copy that shares nothing mutable with the store.
func (r Request) snapshot() Request {
	r.Timeout = copyDuration(r.Timeout)
	return r
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	value := *d
	return &value
}

func durationAttr(d *time.Duration) string {
	if d == nil {
		return "none"
	}
	return d.String()
}
