// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package socketpath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/asuku/lib/testutil"
)

func testEnvironment(t *testing.T, configDir string, vars map[string]string) environment {
	t.Helper()
	return environment{
		getenv:    func(key string) string { return vars[key] },
		configDir: func() (string, error) { return configDir, nil },
		uid:       1234,
		tmpRoot:   testutil.SocketDir(t),
	}
}

func TestResolveUsesConfigDirectory(t *testing.T) {
	configDir := testutil.SocketDir(t)
	path, err := resolve(testEnvironment(t, configDir, nil))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(configDir, "asuku", "asuku.sock")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("stat socket directory: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("directory mode = %o, want 700", info.Mode().Perm())
	}
}

func TestResolveFallsBackToRuntimeDirectory(t *testing.T) {
	longConfigDir := "/" + strings.Repeat("x", MaxPathLength)
	runtimeDir := testutil.SocketDir(t)
	env := testEnvironment(t, longConfigDir, map[string]string{"XDG_RUNTIME_DIR": runtimeDir})

	path, err := resolve(env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := filepath.Join(runtimeDir, "asuku", "asuku.sock"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestResolveFallsBackToTmp(t *testing.T) {
	longConfigDir := "/" + strings.Repeat("x", MaxPathLength)
	env := testEnvironment(t, longConfigDir, nil)

	path, err := resolve(env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := filepath.Join(env.tmpRoot, "asuku-1234", "asuku.sock"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestResolvePathTooLong(t *testing.T) {
	long := "/" + strings.Repeat("x", MaxPathLength)
	env := testEnvironment(t, long, map[string]string{"XDG_RUNTIME_DIR": long})
	env.tmpRoot = long

	_, err := resolve(env)
	var tooLong *PathTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("resolve error = %v, want PathTooLongError", err)
	}
	if !strings.HasPrefix(tooLong.Path, long) {
		t.Errorf("PathTooLongError.Path = %q, want the config-directory candidate", tooLong.Path)
	}
}

func TestResolveOverride(t *testing.T) {
	override := filepath.Join(testutil.SocketDir(t), "nested", "custom.sock")
	env := testEnvironment(t, "/unused", map[string]string{EnvOverride: override})

	path, err := resolve(env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != override {
		t.Errorf("path = %q, want %q", path, override)
	}
	if _, err := os.Stat(filepath.Dir(override)); err != nil {
		t.Errorf("override directory not created: %v", err)
	}
}

func TestEnsureDirectoryTightensPermissions(t *testing.T) {
	directory := filepath.Join(testutil.SocketDir(t), "loose")
	if err := os.Mkdir(directory, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirectory(directory); err != nil {
		t.Fatalf("EnsureDirectory: %v", err)
	}
	info, err := os.Stat(directory)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("mode = %o, want 700", info.Mode().Perm())
	}
}

func TestEnsureDirectoryRejectsFile(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "file")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	var notDir *NotADirectoryError
	if err := EnsureDirectory(path); !errors.As(err, &notDir) {
		t.Errorf("EnsureDirectory(file) = %v, want NotADirectoryError", err)
	}
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "stale.sock")
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("RemoveIfExists(missing) = %v", err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present after RemoveIfExists: %v", err)
	}
}
