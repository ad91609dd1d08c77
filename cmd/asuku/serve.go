// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/asuku/internal/coordinator"
	"github.com/bureau-foundation/asuku/lib/cli"
	"github.com/bureau-foundation/asuku/lib/config"
	"github.com/bureau-foundation/asuku/lib/socketpath"
	"github.com/bureau-foundation/asuku/lib/version"
)

func serveCommand() *cli.Command {
	var (
		configPath string
		socketFlag string
		logLevel   string
	)
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the permission coordinator",
		Description: `Run the permission coordinator in the foreground.

A missing config file is created with a generated webhook secret and
ntfy topic. The config file is watched: timeout, webhook, and ntfy
changes apply without a restart.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/asuku/config.yaml)")
			flagSet.StringVar(&socketFlag, "socket", "", "socket path, overriding the config file and "+socketpath.EnvOverride)
			flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Run with debug logging", Command: "asuku serve --log-level debug"},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			level, err := cli.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			logger := cli.NewCommandLogger(level).With("command", "serve")
			return serve(ctx, configPath, socketFlag, logger)
		},
	}
}

func serve(ctx context.Context, configPath, socketFlag string, logger *slog.Logger) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := loadOrCreate(path, logger)
	if err != nil {
		return err
	}
	socketPath, err := resolveSocketPath(socketFlag, cfg)
	if err != nil {
		return err
	}

	coordinatorConfig, err := coordinator.FromConfig(cfg, socketPath, logger)
	if err != nil {
		return err
	}
	daemon := coordinator.New(coordinatorConfig)
	if err := daemon.Start(); err != nil {
		daemon.Stop()
		return fmt.Errorf("starting coordinator: %w", err)
	}
	logger.Info("asuku started",
		"version", version.Short(),
		"config_path", path,
		"socket_path", socketPath,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer cancel()
		return daemon.Run(groupCtx)
	})
	group.Go(func() error {
		current := cfg
		return config.Watch(groupCtx, path, cfg, logger, func(next *config.Config) {
			if err := next.Validate(); err != nil {
				logger.Warn("ignoring invalid config change", "error", err)
				return
			}
			if err := daemon.ApplyConfig(current, next); err != nil {
				logger.Error("applying config change", "error", err)
			}
			current = next
		})
	})
	return group.Wait()
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultPath()
}

// loadOrCreate loads path, writing a fresh config there if none
// exists. Generated values missing from an existing file are filled in
// and saved.
func loadOrCreate(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		logger.Info("creating config file", "path", path)
	} else if err != nil {
		return nil, err
	}
	generated := cfg.FillGenerated()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if generated {
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// resolveSocketPath picks the --socket flag, then the config file's
// socket.path, then socketpath.Resolve.
func resolveSocketPath(flagValue string, cfg *config.Config) (string, error) {
	explicit := flagValue
	if explicit == "" {
		explicit = cfg.Socket.Path
	}
	if explicit == "" {
		return socketpath.Resolve()
	}
	if len(explicit) > socketpath.MaxPathLength {
		return "", &socketpath.PathTooLongError{Path: explicit}
	}
	if err := socketpath.EnsureDirectory(filepath.Dir(explicit)); err != nil {
		return "", err
	}
	return explicit, nil
}
