// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketpath locates the daemon's Unix socket and prepares its
// directory.
//
// [Resolve] tries, in order, the user configuration directory,
// $XDG_RUNTIME_DIR, and a per-uid directory under /tmp, taking the
// first candidate whose socket path fits in [MaxPathLength] bytes. The
// ASUKU_SOCKET environment variable bypasses the search. Directories
// are created (or tightened) to mode 0700 and must be owned by the
// calling user; the socket itself is set to 0600 once listening.
package socketpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// MaxPathLength is the longest socket path accepted. sun_path is 108
// bytes on Linux and 104 on the BSDs; the smaller bound keeps a
// configured path portable between the two.
const MaxPathLength = 104

// EnvOverride names the environment variable that, when set, is used
// as the socket path verbatim.
const EnvOverride = "ASUKU_SOCKET"

const (
	appDirectory   = "asuku"
	socketFilename = "asuku.sock"

	directoryMode = 0o700
	socketMode    = 0o600
)

// PathTooLongError reports that no candidate socket path fits in
// MaxPathLength bytes. Path is the preferred (first) candidate.
type PathTooLongError struct {
	Path string
}

func (e *PathTooLongError) Error() string {
	return fmt.Sprintf("socket path exceeds %d byte limit: %s (%d bytes); configure a shorter path",
		MaxPathLength, e.Path, len(e.Path))
}

// NotADirectoryError reports a non-directory where the socket directory
// should be.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("expected a directory but found a file: %s", e.Path)
}

// ForeignOwnerError reports a socket directory owned by another user.
// Listening there would let that user replace the socket.
type ForeignOwnerError struct {
	Path string
	UID  uint32
}

func (e *ForeignOwnerError) Error() string {
	return fmt.Sprintf("socket directory %s is owned by uid %d, not the current user", e.Path, e.UID)
}

// environment is the process state Resolve reads. Tests substitute
// their own.
type environment struct {
	getenv    func(string) string
	configDir func() (string, error)
	uid       int
	tmpRoot   string
}

func processEnvironment() environment {
	return environment{
		getenv:    os.Getenv,
		configDir: os.UserConfigDir,
		uid:       os.Getuid(),
		tmpRoot:   "/tmp",
	}
}

// Resolve returns the socket path to use, creating its directory if
// necessary. See the package documentation for the search order.
func Resolve() (string, error) {
	return resolve(processEnvironment())
}

func resolve(env environment) (string, error) {
	if override := env.getenv(EnvOverride); override != "" {
		if len(override) > MaxPathLength {
			return "", &PathTooLongError{Path: override}
		}
		if err := EnsureDirectory(filepath.Dir(override)); err != nil {
			return "", err
		}
		return override, nil
	}

	var candidates []string
	if configDir, err := env.configDir(); err == nil && configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, appDirectory))
	}
	if runtimeDir := env.getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		candidates = append(candidates, filepath.Join(runtimeDir, appDirectory))
	}
	candidates = append(candidates, filepath.Join(env.tmpRoot, appDirectory+"-"+strconv.Itoa(env.uid)))

	for _, directory := range candidates {
		path := filepath.Join(directory, socketFilename)
		if len(path) > MaxPathLength {
			continue
		}
		if err := EnsureDirectory(directory); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", &PathTooLongError{Path: filepath.Join(candidates[0], socketFilename)}
}

// EnsureDirectory creates path (and parents) with mode 0700, or, if it
// already exists, verifies it is a directory owned by the current user
// and resets its mode to 0700.
func EnsureDirectory(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(path, directoryMode); err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
		// MkdirAll is subject to the umask.
		return os.Chmod(path, directoryMode)
	}
	if err != nil {
		return fmt.Errorf("checking socket directory: %w", err)
	}
	if !info.IsDir() {
		return &NotADirectoryError{Path: path}
	}

	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return fmt.Errorf("checking socket directory owner: %w", err)
	}
	if int(stat.Uid) != os.Getuid() {
		return &ForeignOwnerError{Path: path, UID: stat.Uid}
	}
	if info.Mode().Perm() != directoryMode {
		if err := os.Chmod(path, directoryMode); err != nil {
			return fmt.Errorf("tightening socket directory permissions: %w", err)
		}
	}
	return nil
}

// SetSocketPermissions restricts the socket file to its owner.
func SetSocketPermissions(path string) error {
	if err := os.Chmod(path, socketMode); err != nil {
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	return nil
}

// RemoveIfExists removes the file at path. A missing file is not an
// error.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
