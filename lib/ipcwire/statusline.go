// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

// StatuslineData is the statusline JSON the CLI tool pipes to its
// statusline command. Every field is optional: the tool sends partial
// documents and adds fields over time, so unknown keys are ignored and
// absent ones stay nil.
type StatuslineData struct {
	Cwd                 *string            `json:"cwd,omitempty"`
	SessionID           *string            `json:"session_id,omitempty"`
	TranscriptPath      *string            `json:"transcript_path,omitempty"`
	Model               *ModelInfo         `json:"model,omitempty"`
	Workspace           *WorkspaceInfo     `json:"workspace,omitempty"`
	Version             *string            `json:"version,omitempty"`
	Cost                *CostInfo          `json:"cost,omitempty"`
	ContextWindow       *ContextWindowInfo `json:"context_window,omitempty"`
	ExceedsContextLimit *bool              `json:"exceeds_200k_tokens,omitempty"`
	Agent               *AgentInfo         `json:"agent,omitempty"`
}

type ModelInfo struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name,omitempty"`
}

type WorkspaceInfo struct {
	CurrentDir *string `json:"current_dir,omitempty"`
	ProjectDir *string `json:"project_dir,omitempty"`
}

type CostInfo struct {
	TotalCostUSD       *float64 `json:"total_cost_usd,omitempty"`
	TotalDurationMs    *int64   `json:"total_duration_ms,omitempty"`
	TotalAPIDurationMs *int64   `json:"total_api_duration_ms,omitempty"`
	TotalLinesAdded    *int64   `json:"total_lines_added,omitempty"`
	TotalLinesRemoved  *int64   `json:"total_lines_removed,omitempty"`
}

type ContextWindowInfo struct {
	TotalInputTokens    *int64      `json:"total_input_tokens,omitempty"`
	TotalOutputTokens   *int64      `json:"total_output_tokens,omitempty"`
	ContextWindowSize   *int64      `json:"context_window_size,omitempty"`
	UsedPercentage      *int        `json:"used_percentage,omitempty"`
	RemainingPercentage *int        `json:"remaining_percentage,omitempty"`
	CurrentUsage        *TokenUsage `json:"current_usage,omitempty"`
}

type TokenUsage struct {
	InputTokens              *int64 `json:"input_tokens,omitempty"`
	OutputTokens             *int64 `json:"output_tokens,omitempty"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens,omitempty"`
}

type AgentInfo struct {
	Name *string `json:"name,omitempty"`
}

// SessionKey returns the identifier used to key this statusline:
// session_id when present and non-empty, otherwise transcript_path.
// Returns "" when neither is available.
func (s StatuslineData) SessionKey() string {
	if s.SessionID != nil && *s.SessionID != "" {
		return *s.SessionID
	}
	if s.TranscriptPath != nil {
		return *s.TranscriptPath
	}
	return ""
}
