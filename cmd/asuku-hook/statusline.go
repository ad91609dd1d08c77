// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/asuku/lib/ipcclient"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// statusline echoes stdin to stdout unchanged, since the tool renders
// whatever the statusline command prints, and forwards the parsed
// statusline to the daemon if it names a session. It never fails the
// tool's statusline: every error is logged at debug and dropped.
func statusline(ctx context.Context, env *environment, client *ipcclient.Client) error {
	data, err := readInput(env)
	if err != nil {
		env.logger.Debug("statusline input unreadable", "error", err)
		return nil
	}
	if _, err := env.stdout.Write(data); err != nil {
		return err
	}
	if client == nil {
		return nil
	}

	var parsed ipcwire.StatuslineData
	if err := json.Unmarshal(data, &parsed); err != nil {
		env.logger.Debug("statusline is not JSON", "error", err)
		return nil
	}
	sessionID := parsed.SessionKey()
	if sessionID == "" {
		return nil
	}
	event := ipcwire.StatusUpdateEvent{
		SessionID:  sessionID,
		Statusline: parsed,
		Timestamp:  env.now().UTC(),
	}
	if err := client.SendOnly(ctx, ipcwire.NewMessage(event)); err != nil {
		env.logger.Debug("status update not delivered", "session_id", sessionID, "error", err)
	}
	return nil
}
