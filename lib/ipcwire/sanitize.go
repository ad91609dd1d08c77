// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sensitivePatterns precede values that must never reach a
// notification surface. Matching is ASCII case-insensitive.
var sensitivePatterns = []string{
	"TOKEN=", "API_KEY=", "SECRET=", "PASSWORD=", "PRIVATE_KEY=",
	"Authorization:", "Bearer ", "Basic ",
	"AWS_SECRET", "GITHUB_TOKEN", "NPM_TOKEN",
}

// maskReplacement replaces each masked value.
const maskReplacement = "***"

// DefaultNotificationLength is the rune budget used by
// SanitizeForNotification when callers have no tighter limit.
const DefaultNotificationLength = 200

// Sanitize masks the value following each sensitive pattern in input.
// A value runs from the end of the pattern up to whitespace, a quote,
// a comma, a closing brace, or the end of input. Sanitize is
// idempotent: masking already-masked text changes nothing.
func Sanitize(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = maskPattern(result, pattern)
	}
	return result
}

func maskPattern(input, pattern string) string {
	var output strings.Builder
	rest := input
	for {
		index := indexFoldASCII(rest, pattern)
		if index < 0 {
			output.WriteString(rest)
			return output.String()
		}
		valueStart := index + len(pattern)
		// Bare names like GITHUB_TOKEN are followed by their own "=".
		if valueStart < len(rest) && rest[valueStart] == '=' {
			valueStart++
		}
		valueEnd := valueStart
		for valueEnd < len(rest) {
			r, size := utf8.DecodeRuneInString(rest[valueEnd:])
			if isValueTerminator(r) {
				break
			}
			valueEnd += size
		}
		output.WriteString(rest[:valueStart])
		if valueEnd > valueStart {
			output.WriteString(maskReplacement)
		}
		rest = rest[valueEnd:]
	}
}

// indexFoldASCII is strings.Index with ASCII case folding. Patterns
// are ASCII, so byte offsets stay valid in the original string.
func indexFoldASCII(s, pattern string) int {
	for i := 0; i+len(pattern) <= len(s); i++ {
		match := true
		for j := 0; j < len(pattern); j++ {
			if toLowerASCII(s[i+j]) != toLowerASCII(pattern[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func isValueTerminator(r rune) bool {
	return unicode.IsSpace(r) || r == '"' || r == '\'' || r == ',' || r == '}'
}

// SanitizeForNotification sanitizes input and truncates it to maxLength
// runes, appending "..." when truncated.
func SanitizeForNotification(input string, maxLength int) string {
	sanitized := Sanitize(input)
	if utf8.RuneCountInString(sanitized) <= maxLength {
		return sanitized
	}
	runes := []rune(sanitized)
	return string(runes[:maxLength]) + "..."
}
