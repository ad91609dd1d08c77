// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettleDelay coalesces the burst of events an editor produces
// for one save (truncate, write, chmod, or a rename dance).
const watchSettleDelay = 100 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with each
// config that parses and differs from the last one delivered. initial
// is the config the caller is already running with. Parse failures
// are logged and skipped; the previous config stays in effect.
//
// The parent directory is watched rather than the file, so editors
// that replace the file by renaming are followed. Blocks until ctx is
// cancelled and returns nil, or returns an error if the watch could
// not be set up.
func Watch(ctx context.Context, path string, initial *Config, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	directory := filepath.Dir(path)
	if err := watcher.Add(directory); err != nil {
		return fmt.Errorf("watching %s: %w", directory, err)
	}
	logger.Debug("watching config file", "path", path)

	var current Config
	if initial != nil {
		current = *initial
	}
	settle := time.NewTimer(watchSettleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				settle.Reset(watchSettleDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "path", path, "error", err)

		case <-settle.C:
			next, err := LoadFile(path)
			if err != nil {
				if !os.IsNotExist(err) {
					logger.Warn("ignoring invalid config change", "path", path, "error", err)
				}
				continue
			}
			if err := next.Validate(); err != nil {
				logger.Warn("ignoring invalid config change", "path", path, "error", err)
				continue
			}
			if *next == current {
				continue
			}
			current = *next
			logger.Info("config reloaded", "path", path)
			onChange(next)
		}
	}
}
