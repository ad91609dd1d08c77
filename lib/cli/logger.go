// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger returns a logger on stderr at level. A terminal gets
// the text handler; pipes and files get JSON.
//
//	logger := cli.NewCommandLogger(slog.LevelInfo).With("command", "serve")
func NewCommandLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

func newLogger(w io.Writer, interactive bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if interactive {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// ParseLevel converts a --log-level value ("debug", "info", "warn",
// "error") to a slog.Level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(value))
	return level, err
}

// IsInteractive reports whether file is a terminal.
func IsInteractive(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
