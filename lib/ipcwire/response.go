// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"encoding/json"
	"fmt"
)

// Decision is the outcome of a permission request.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// ParseDecision converts "allow" or "deny" to a Decision. Any other
// value is an error; matching is exact.
func ParseDecision(value string) (Decision, error) {
	switch Decision(value) {
	case Allow, Deny:
		return Decision(value), nil
	default:
		return "", fmt.Errorf("invalid decision %q", value)
	}
}

// UnmarshalJSON rejects values other than "allow" and "deny".
func (d *Decision) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseDecision(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Response is the daemon's reply to a permission request, sent on the
// connection that carried the request.
type Response struct {
	ProtocolVersion int      `json:"protocolVersion"`
	RequestID       string   `json:"requestId"`
	Decision        Decision `json:"decision"`
}

// NewResponse builds a Response stamped with ProtocolVersion.
func NewResponse(requestID string, decision Decision) Response {
	return Response{
		ProtocolVersion: ProtocolVersion,
		RequestID:       requestID,
		Decision:        decision,
	}
}

// ErrorResponse reports a protocol failure back to the sender.
type ErrorResponse struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Error           string `json:"error"`
}

// NewErrorResponse builds an ErrorResponse stamped with
// ProtocolVersion.
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{ProtocolVersion: ProtocolVersion, Error: message}
}

// DecodeResponse parses a reply frame payload. A payload that decodes
// as an ErrorResponse (non-empty "error", no "requestId") is returned
// as an error so callers handle the two reply shapes uniformly.
func DecodeResponse(payload []byte) (Response, error) {
	var probe struct {
		RequestID *string `json:"requestId"`
		Error     *string `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if probe.RequestID == nil && probe.Error != nil {
		return Response{}, fmt.Errorf("daemon rejected request: %s", *probe.Error)
	}

	var response Response
	if err := json.Unmarshal(payload, &response); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return response, nil
}
