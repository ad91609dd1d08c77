// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
)

// ExitError requests a non-zero exit without an extra error line. The
// command has already written whatever the caller needs to see.
//
// The hook binary relies on this: a failed permission request exits 1
// with nothing on stdout so the CLI tool falls back to its own prompt.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode maps the error returned by a command tree to a process exit
// code, writing "error: ..." to stderr for anything that is not an
// ExitError.
func ExitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}
