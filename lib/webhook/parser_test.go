// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

const testRequestID = "3f2b8c1e-9d4a-4e6b-8a1f-2c3d4e5f6a7b"

func stringPointer(s string) *string { return &s }

func tokenString(token *string) string {
	if token == nil {
		return "<nil>"
	}
	return *token
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		action    ipcwire.Decision
		requestID string
		token     *string
	}{
		{"allow with token", "/webhook/allow/" + testRequestID + "?token=abc", ipcwire.Allow, testRequestID, stringPointer("abc")},
		{"deny without token", "/webhook/deny/" + testRequestID, ipcwire.Deny, testRequestID, nil},
		{"uppercase uuid", "/webhook/allow/" + strings.ToUpper(testRequestID), ipcwire.Allow, strings.ToUpper(testRequestID), nil},
		{"extra slashes", "//webhook//allow/" + testRequestID + "/", ipcwire.Allow, testRequestID, nil},
		{"last token wins", "/webhook/allow/" + testRequestID + "?token=a&token=b", ipcwire.Allow, testRequestID, stringPointer("b")},
		{"empty token", "/webhook/allow/" + testRequestID + "?token=", ipcwire.Allow, testRequestID, nil},
		{"empty token after value keeps value", "/webhook/allow/" + testRequestID + "?token=abc&token=", ipcwire.Allow, testRequestID, stringPointer("abc")},
		{"token with equals", "/webhook/allow/" + testRequestID + "?x=1&token=a=b", ipcwire.Allow, testRequestID, stringPointer("a=b")},
		{"other parameters", "/webhook/deny/" + testRequestID + "?foo=bar&tokenx=1", ipcwire.Deny, testRequestID, nil},
	}
	for _, test := range tests {
		request := ParsePath(test.path)
		if request == nil {
			t.Errorf("%s: ParsePath(%q) = nil", test.name, test.path)
			continue
		}
		if request.Action != test.action || request.RequestID != test.requestID {
			t.Errorf("%s: got %s/%s, want %s/%s", test.name, request.Action, request.RequestID, test.action, test.requestID)
		}
		if tokenString(request.QueryToken) != tokenString(test.token) {
			t.Errorf("%s: token = %s, want %s", test.name, tokenString(request.QueryToken), tokenString(test.token))
		}
	}
}

func TestParsePathRejects(t *testing.T) {
	paths := []string{
		"/webhook/allow/not-a-uuid",
		"/webhook/delete/" + testRequestID,
		"/webhook/Allow/" + testRequestID,
		"/hooks/allow/" + testRequestID,
		"/webhook/allow",
		"/webhook/allow/" + testRequestID + "/extra",
		"/webhook/allow/../../etc/passwd",
		"/webhook/allow/" + strings.ReplaceAll(testRequestID, "-", ""),
		"/webhook/allow/{" + testRequestID + "}",
		"/webhook/allow/urn:uuid:" + testRequestID,
		"",
		"/",
	}
	for _, path := range paths {
		if request := ParsePath(path); request != nil {
			t.Errorf("ParsePath(%q) = %+v, want nil", path, request)
		}
	}
}

func TestParse(t *testing.T) {
	raw := "POST /webhook/deny/" + testRequestID + "?token=legacy HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"authorization:   BEARER s3cret  \r\n" +
		"\r\n"
	request := Parse(raw)
	if request == nil {
		t.Fatal("Parse returned nil")
	}
	if request.Action != ipcwire.Deny || request.RequestID != testRequestID {
		t.Errorf("request = %+v", request)
	}
	if tokenString(request.BearerToken) != "s3cret" {
		t.Errorf("BearerToken = %s, want s3cret", tokenString(request.BearerToken))
	}
	if tokenString(request.QueryToken) != "legacy" {
		t.Errorf("QueryToken = %s, want legacy", tokenString(request.QueryToken))
	}
	if tokenString(request.EffectiveToken()) != "s3cret" {
		t.Errorf("EffectiveToken = %s, want the bearer token", tokenString(request.EffectiveToken()))
	}
}

func TestParseStopsAtBlankLine(t *testing.T) {
	raw := "POST /webhook/allow/" + testRequestID + "?token=q HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"\r\n" +
		"Authorization: Bearer from-body\r\n"
	request := Parse(raw)
	if request == nil {
		t.Fatal("Parse returned nil")
	}
	if request.BearerToken != nil {
		t.Errorf("BearerToken = %q, want nil (header after blank line)", *request.BearerToken)
	}
	if tokenString(request.EffectiveToken()) != "q" {
		t.Errorf("EffectiveToken = %s, want the query token", tokenString(request.EffectiveToken()))
	}
}

func TestParseRejects(t *testing.T) {
	requests := []string{
		"GET /webhook/allow/" + testRequestID + " HTTP/1.1\r\n\r\n",
		"post /webhook/allow/" + testRequestID + " HTTP/1.1\r\n\r\n",
		"POST\r\n\r\n",
		"POST /webhook/allow/nope HTTP/1.1\r\n\r\n",
		"",
	}
	for _, raw := range requests {
		if request := Parse(raw); request != nil {
			t.Errorf("Parse(%q) = %+v, want nil", raw, request)
		}
	}
}

func TestParseIgnoresOtherSchemes(t *testing.T) {
	raw := "POST /webhook/allow/" + testRequestID + " HTTP/1.1\r\n" +
		"Authorization: Basic dXNlcjpwYXNz\r\n" +
		"Authorization: Bearer\r\n" +
		"\r\n"
	request := Parse(raw)
	if request == nil {
		t.Fatal("Parse returned nil")
	}
	if request.EffectiveToken() != nil {
		t.Errorf("EffectiveToken = %q, want nil", *request.EffectiveToken())
	}
}

func TestValidateToken(t *testing.T) {
	expected := []byte("correct-secret")
	tests := []struct {
		name     string
		provided *string
		want     bool
	}{
		{"equal", stringPointer("correct-secret"), true},
		{"nil", nil, false},
		{"empty", stringPointer(""), false},
		{"shorter", stringPointer("correct"), false},
		{"longer", stringPointer("correct-secret!"), false},
		{"same length, first byte differs", stringPointer("Correct-secret"), false},
		{"same length, last byte differs", stringPointer("correct-secreT"), false},
	}
	for _, test := range tests {
		if got := ValidateToken(test.provided, expected); got != test.want {
			t.Errorf("%s: ValidateToken = %v, want %v", test.name, got, test.want)
		}
	}
}
