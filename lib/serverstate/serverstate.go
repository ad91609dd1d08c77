// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package serverstate defines the lifecycle state shared by the IPC
// socket server and the webhook server. Servers report transitions
// through a callback; they never restart themselves after a failure.
package serverstate

import "fmt"

// Status is the coarse lifecycle phase of a server.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is a Status plus, for StatusFailed, the reason. The zero value
// is a stopped server.
type State struct {
	Status Status
	Reason string
}

func Stopped() State { return State{Status: StatusStopped} }

func Running() State { return State{Status: StatusRunning} }

// Failed returns a failed state carrying reason.
func Failed(reason string) State {
	return State{Status: StatusFailed, Reason: reason}
}

// IsRunning reports whether the server is accepting connections.
func (s State) IsRunning() bool { return s.Status == StatusRunning }

// String renders "stopped", "running", or "failed: <reason>".
func (s State) String() string {
	if s.Status == StatusFailed {
		return "failed: " + s.Reason
	}
	return s.Status.String()
}

// Func receives state transitions. Implementations must not block.
type Func func(State)

// Notify calls f with state if f is non-nil.
func (f Func) Notify(state State) {
	if f != nil {
		f(state)
	}
}
