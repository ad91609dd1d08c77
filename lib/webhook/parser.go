// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// uuidTextLength is the length of the hyphenated UUID form. uuid.Parse
// also accepts braced, URN and hyphenless forms; request IDs in paths
// are always the plain hyphenated form.
const uuidTextLength = 36

// Request is a parsed decision callback.
type Request struct {
	Action    ipcwire.Decision
	RequestID string

	// QueryToken is the legacy ?token= value. Nil when absent or
	// empty.
	QueryToken *string

	// BearerToken is the Authorization: Bearer value. Nil when the
	// header is absent.
	BearerToken *string
}

// EffectiveToken returns the bearer token if present, otherwise the
// query token.
func (r Request) EffectiveToken() *string {
	if r.BearerToken != nil {
		return r.BearerToken
	}
	return r.QueryToken
}

// Parse parses the request line and headers of a raw HTTP request.
// Returns nil unless the method is POST and the path is a valid
// callback path. Anything after the blank line is ignored.
func Parse(raw string) *Request {
	lines := strings.Split(raw, "\r\n")
	method, target, ok := splitRequestLine(lines[0])
	if !ok || method != "POST" {
		return nil
	}
	request := ParsePath(target)
	if request == nil {
		return nil
	}
	request.BearerToken = bearerToken(lines[1:])
	return request
}

// splitRequestLine returns the method and request target of an HTTP
// request line.
func splitRequestLine(line string) (method, target string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParsePath parses "/webhook/{allow|deny}/{uuid}[?query]". Empty
// segments are skipped, so "//webhook/allow/<id>/" is accepted. The
// request ID must be a hyphenated UUID in either case; it is returned
// as written. In the query, the last token= wins.
func ParsePath(target string) *Request {
	path, query, _ := strings.Cut(target, "?")

	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) != 3 || segments[0] != "webhook" {
		return nil
	}

	var action ipcwire.Decision
	switch segments[1] {
	case "allow":
		action = ipcwire.Allow
	case "deny":
		action = ipcwire.Deny
	default:
		return nil
	}

	requestID := segments[2]
	if len(requestID) != uuidTextLength {
		return nil
	}
	if _, err := uuid.Parse(requestID); err != nil {
		return nil
	}

	return &Request{
		Action:     action,
		RequestID:  requestID,
		QueryToken: queryToken(query),
	}
}

func queryToken(query string) *string {
	var token *string
	for _, parameter := range strings.Split(query, "&") {
		key, value, found := strings.Cut(parameter, "=")
		if !found || key != "token" || value == "" {
			continue
		}
		token = &value
	}
	return token
}

// bearerToken scans header lines up to the blank line for an
// Authorization header with the Bearer scheme. Both names are matched
// case-insensitively.
func bearerToken(headers []string) *string {
	const (
		headerName = "authorization:"
		scheme     = "bearer "
	)
	for _, line := range headers {
		if line == "" {
			break
		}
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(headerName) || !strings.EqualFold(trimmed[:len(headerName)], headerName) {
			continue
		}
		value := strings.TrimSpace(trimmed[len(headerName):])
		if len(value) < len(scheme) || !strings.EqualFold(value[:len(scheme)], scheme) {
			continue
		}
		token := value[len(scheme):]
		return &token
	}
	return nil
}

// ValidateToken reports whether provided equals expected. The content
// comparison is constant-time; only the length can be learned from
// timing.
func ValidateToken(provided *string, expected []byte) bool {
	if provided == nil {
		return false
	}
	if len(*provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*provided), expected) == 1
}
