// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small connection and HTTP helpers shared by the
// daemon's servers and the ntfy publisher.
//
// Response helpers ([DecodeResponse], [ErrorBody]) bound every body
// read at [MaxResponseSize]. The only HTTP peer is a push relay whose
// replies are a few hundred bytes; anything larger is a misbehaving
// server.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds HTTP response body reads.
const MaxResponseSize int64 = 64 << 10

// DecodeResponse reads body (up to MaxResponseSize bytes) and decodes
// it as JSON into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an error response body for use in an error message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
