// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"time"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// SessionStatus is the newest statusline of an active CLI session.
type SessionStatus struct {
	SessionID  string
	Statusline ipcwire.StatuslineData
	UpdatedAt  time.Time
}

// Sessions returns the active sessions sorted by session ID.
func (c *Coordinator) Sessions() []SessionStatus {
	c.mu.Lock()
	sessions := c.sessionsLocked()
	c.mu.Unlock()
	return sessions
}

// handleFlush applies one throttle flush: active sessions are upserted
// and stale ones dropped.
func (c *Coordinator) handleFlush(active []ipcwire.StatusUpdateEvent, staleSessionIDs []string) {
	now := c.clock.Now()

	c.mu.Lock()
	for _, event := range active {
		updatedAt := event.Timestamp
		if updatedAt.IsZero() {
			updatedAt = now
		}
		c.sessions[event.SessionID] = SessionStatus{
			SessionID:  event.SessionID,
			Statusline: event.Statusline,
			UpdatedAt:  updatedAt,
		}
	}
	for _, sessionID := range staleSessionIDs {
		delete(c.sessions, sessionID)
	}
	sessions := c.sessionsLocked()
	c.mu.Unlock()

	if c.observers.OnSessionsChange != nil {
		c.observers.OnSessionsChange(sessions)
	}
}

func (c *Coordinator) sessionsLocked() []SessionStatus {
	sessions := make([]SessionStatus, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	sortSessions(sessions)
	return sessions
}
