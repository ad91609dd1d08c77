// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/asuku/lib/ipcclient"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

const (
	defaultNotificationTitle = "Claude Code"
	defaultNotificationBody  = "Notification"
)

type notificationInput struct {
	SessionID        string  `json:"session_id"`
	HookEventName    string  `json:"hook_event_name"`
	NotificationType *string `json:"notification_type,omitempty"`
	Message          *string `json:"message,omitempty"`
	Title            *string `json:"title,omitempty"`
}

// notification forwards a Notification hook document. Delivery is
// best-effort: a missing daemon is logged and the hook still exits 0.
func notification(ctx context.Context, env *environment, client *ipcclient.Client) error {
	data, err := readInput(env)
	if err != nil {
		return err
	}
	var input notificationInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}

	event := ipcwire.NotificationEvent{
		SessionID: input.SessionID,
		Title:     firstNonEmpty(defaultNotificationTitle, input.Title),
		Body:      firstNonEmpty(defaultNotificationBody, input.Message, input.NotificationType),
		Timestamp: env.now().UTC(),
	}
	if err := client.SendOnly(ctx, ipcwire.NewMessage(event)); err != nil {
		env.logger.Warn("notification not delivered", "session_id", input.SessionID, "error", err)
	}
	return nil
}

// firstNonEmpty returns the first non-nil, non-empty candidate, or
// fallback.
func firstNonEmpty(fallback string, candidates ...*string) string {
	for _, candidate := range candidates {
		if candidate != nil && *candidate != "" {
			return *candidate
		}
	}
	return fallback
}
