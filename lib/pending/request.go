// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pending

import (
	"time"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// titleCommandLength bounds the command excerpt in DisplayTitle.
const titleCommandLength = 80

// Responder sends the reply for one request. ipcserver.Responder
// satisfies it.
type Responder interface {
	Send(response ipcwire.Response) error
}

// Request is a snapshot of one pending permission request.
type Request struct {
	// ID is the hook-generated request ID, equal to Event.RequestID.
	ID        string
	Event     ipcwire.PermissionRequestEvent
	Responder Responder
	CreatedAt time.Time

	// Timeout is how long after CreatedAt the request auto-denies.
	// Nil means the request never expires.
	Timeout *time.Duration
}

// IsExpired reports whether the request's timeout has elapsed at now.
// A request without a timeout never expires.
func (r Request) IsExpired(now time.Time) bool {
	if r.Timeout == nil {
		return false
	}
	return now.Sub(r.CreatedAt) >= *r.Timeout
}

// Deadline returns when the request auto-denies, or false if it has
// no timeout.
func (r Request) Deadline() (time.Time, bool) {
	if r.Timeout == nil {
		return time.Time{}, false
	}
	return r.CreatedAt.Add(*r.Timeout), true
}

// DisplayTitle is a one-line summary: the sanitized command for Bash,
// the file path for Write and Edit, otherwise the tool name.
func (r Request) DisplayTitle() string {
	toolName := r.Event.ToolName
	input := r.Event.ToolInput
	switch toolName {
	case "Bash":
		if command, ok := input.StringValue("command"); ok {
			return "Bash: " + ipcwire.SanitizeForNotification(command, titleCommandLength)
		}
		return "Bash command"
	case "Write", "Edit":
		if path, ok := input.StringValue("file_path"); ok {
			return toolName + ": " + path
		}
		return toolName
	default:
		return toolName
	}
}

// NotificationBody is the longer text shown in push notifications.
// Tools without a dedicated rendering list their input as key/value
// pairs. The result is always sanitized.
func (r Request) NotificationBody() string {
	toolName := r.Event.ToolName
	input := r.Event.ToolInput
	switch toolName {
	case "Bash":
		if command, ok := input.StringValue("command"); ok {
			return ipcwire.SanitizeForNotification(command, ipcwire.DefaultNotificationLength)
		}
		return "Execute bash command"
	case "Write":
		if path, ok := input.StringValue("file_path"); ok {
			return "Write to " + path
		}
		return "Write file"
	case "Edit":
		if path, ok := input.StringValue("file_path"); ok {
			return "Edit " + path
		}
		return "Edit file"
	default:
		return ipcwire.SanitizeForNotification(toolName+": "+input.Describe(), ipcwire.DefaultNotificationLength)
	}
}
