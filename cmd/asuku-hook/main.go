// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Asuku-hook is the hook command a CLI tool runs for its lifecycle
// events. Each subcommand reads the tool's JSON on stdin and talks to
// the asuku daemon over its Unix socket:
//
//	asuku-hook permission-request   wait for an allow/deny decision
//	asuku-hook notification         forward a notification
//	asuku-hook statusline           echo the statusline, forward a status update
//
// stdout belongs to the tool's hook protocol. Diagnostics go to
// stderr. A permission request that cannot be answered exits 1 with
// nothing on stdout, and the tool falls back to its own prompt.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/asuku/lib/cli"
	"github.com/bureau-foundation/asuku/lib/ipcclient"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/socketpath"
	"github.com/bureau-foundation/asuku/lib/version"
)

func main() {
	os.Exit(cli.ExitCode(run(os.Args[1:]), os.Stderr))
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCommand(processEnvironment()).Execute(ctx, args)
}

// environment is everything a hook touches outside its arguments.
type environment struct {
	stdin       io.Reader
	stdout      io.Writer
	interactive bool
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	resolve     func() (string, error)
}

func processEnvironment() *environment {
	return &environment{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		interactive: cli.IsInteractive(os.Stdin),
		logger:      cli.NewCommandLogger(slog.LevelWarn),
		now:         time.Now,
		newID:       uuid.NewString,
		resolve:     socketpath.Resolve,
	}
}

func rootCommand(env *environment) *cli.Command {
	var socketFlag string
	socketFlags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			flagSet.StringVar(&socketFlag, "socket", "", "daemon socket path (default: resolved as by the daemon, or "+socketpath.EnvOverride+")")
			return flagSet
		}
	}
	client := func() (*ipcclient.Client, error) {
		if socketFlag != "" {
			return ipcclient.New(socketFlag), nil
		}
		path, err := env.resolve()
		if err != nil {
			return nil, fmt.Errorf("resolving daemon socket: %w", err)
		}
		return ipcclient.New(path), nil
	}

	return &cli.Command{
		Name:        "asuku-hook",
		Description: "Hook command connecting a CLI tool to the asuku daemon.",
		Subcommands: []*cli.Command{
			{
				Name:    "permission-request",
				Summary: "Ask the daemon for a permission decision",
				Flags:   socketFlags("permission-request"),
				Run: func(ctx context.Context, args []string) error {
					connection, err := client()
					if err != nil {
						return err
					}
					return permissionRequest(ctx, env, connection)
				},
			},
			{
				Name:    "notification",
				Summary: "Forward a notification to the daemon",
				Flags:   socketFlags("notification"),
				Run: func(ctx context.Context, args []string) error {
					connection, err := client()
					if err != nil {
						return err
					}
					return notification(ctx, env, connection)
				},
			},
			{
				Name:    "statusline",
				Summary: "Echo the statusline and forward it to the daemon",
				Flags:   socketFlags("statusline"),
				Run: func(ctx context.Context, args []string) error {
					// The echo must happen even when the socket cannot be
					// resolved.
					connection, err := client()
					if err != nil {
						env.logger.Debug("statusline not forwarded", "error", err)
					}
					return statusline(ctx, env, connection)
				},
			},
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					fmt.Fprintf(env.stdout, "asuku-hook %s\n", version.Info())
					return nil
				},
			},
		},
	}
}

// readInput reads the hook's stdin document, bounded by the largest
// frame the daemon accepts.
func readInput(env *environment) ([]byte, error) {
	if env.interactive {
		return nil, fmt.Errorf("stdin is a terminal; asuku-hook reads hook JSON from the CLI tool")
	}
	data, err := io.ReadAll(io.LimitReader(env.stdin, ipcwire.MaxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) > ipcwire.MaxFrameSize {
		return nil, fmt.Errorf("stdin exceeds %d bytes", ipcwire.MaxFrameSize)
	}
	return data, nil
}
