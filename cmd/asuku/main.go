// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Asuku is the permission coordinator daemon. CLI tool hooks connect
// to its Unix socket with permission requests, notifications, and
// statusline updates; decisions come back from a phone through ntfy
// action buttons and the loopback webhook server.
//
//	asuku serve                 run the daemon
//	asuku config init           write a config file with generated secrets
//	asuku config show           print the effective configuration
//	asuku config path           print the config file location
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/asuku/lib/cli"
	"github.com/bureau-foundation/asuku/lib/version"
)

func main() {
	os.Exit(cli.ExitCode(run(os.Args[1:]), os.Stderr))
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCommand(os.Stdout).Execute(ctx, args)
}

func rootCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "asuku",
		Description: "Asuku coordinates permission requests from CLI tool hooks.",
		Subcommands: []*cli.Command{
			serveCommand(),
			configCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					fmt.Fprintf(stdout, "asuku %s\n", version.Info())
					return nil
				},
			},
		},
	}
}
