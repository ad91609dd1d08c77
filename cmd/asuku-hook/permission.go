// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/asuku/lib/ipcclient"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

const deniedMessage = "User denied via asuku notification"

// permissionInput is the PermissionRequest hook document.
type permissionInput struct {
	SessionID      string            `json:"session_id"`
	HookEventName  string            `json:"hook_event_name"`
	ToolName       string            `json:"tool_name"`
	ToolInput      ipcwire.ToolInput `json:"tool_input"`
	Cwd            string            `json:"cwd"`
	TranscriptPath *string           `json:"transcript_path,omitempty"`
	PermissionMode *string           `json:"permission_mode,omitempty"`
}

type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName string       `json:"hookEventName"`
	Decision      hookDecision `json:"decision"`
}

type hookDecision struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

// permissionRequest forwards the request and blocks until the daemon
// answers. The CLI tool's own hook timeout bounds the wait.
func permissionRequest(ctx context.Context, env *environment, client *ipcclient.Client) error {
	data, err := readInput(env)
	if err != nil {
		return err
	}
	var input permissionInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("decoding permission request: %w", err)
	}
	if input.ToolName == "" {
		return errors.New("permission request has no tool_name")
	}

	event := ipcwire.PermissionRequestEvent{
		RequestID: env.newID(),
		SessionID: input.SessionID,
		ToolName:  input.ToolName,
		ToolInput: input.ToolInput,
		Cwd:       input.Cwd,
		Timestamp: env.now().UTC(),
	}
	response, err := client.Request(ctx, event)
	if err != nil {
		return fmt.Errorf("permission request %s: %w", event.RequestID, err)
	}

	output := hookOutput{HookSpecificOutput: hookSpecificOutput{
		HookEventName: "PermissionRequest",
		Decision:      hookDecision{Behavior: string(response.Decision)},
	}}
	if response.Decision == ipcwire.Deny {
		output.HookSpecificOutput.Decision.Message = deniedMessage
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.stdout, "%s\n", encoded)
	return err
}
