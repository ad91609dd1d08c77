// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"log/slog"
	"os"
	"testing"
)

// Logger returns a text logger on stderr for components under test.
// Only errors are shown unless the test binary runs with -v. Writing
// to stderr rather than t.Log keeps late log lines from goroutines
// that outlive the test from panicking.
func Logger() *slog.Logger {
	level := slog.LevelError
	if testing.Verbose() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
