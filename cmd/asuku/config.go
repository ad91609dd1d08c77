// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/asuku/lib/cli"
	"github.com/bureau-foundation/asuku/lib/config"
)

const redacted = "<redacted>"

func configCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Manage the configuration file",
		Subcommands: []*cli.Command{
			configInitCommand(stdout),
			configShowCommand(stdout),
			configPathCommand(stdout),
		},
	}
}

func configPathFlag(target *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("config", pflag.ContinueOnError)
	flagSet.StringVar(target, "config", "", "config file (default $XDG_CONFIG_HOME/asuku/config.yaml)")
	return flagSet
}

func configInitCommand(stdout io.Writer) *cli.Command {
	var (
		configPath string
		force      bool
	)
	return &cli.Command{
		Name:    "init",
		Summary: "Write a default config file with a generated secret and topic",
		Flags: func() *pflag.FlagSet {
			flagSet := configPathFlag(&configPath)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			path, err := resolveConfigPath(configPath)
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			cfg := config.Default()
			cfg.FillGenerated()
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "wrote %s\n", path)
			fmt.Fprintf(stdout, "ntfy topic: %s\n", cfg.Ntfy.Topic)
			return nil
		},
	}
}

func configShowCommand(stdout io.Writer) *cli.Command {
	var (
		configPath  string
		showSecrets bool
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Print the effective configuration as YAML",
		Flags: func() *pflag.FlagSet {
			flagSet := configPathFlag(&configPath)
			flagSet.BoolVar(&showSecrets, "show-secrets", false, "print the webhook secret instead of redacting it")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			path, err := resolveConfigPath(configPath)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				cfg = config.Default()
			} else if err != nil {
				return err
			}
			if !showSecrets && cfg.Webhook.Secret != "" {
				cfg.Webhook.Secret = redacted
			}
			encoder := yaml.NewEncoder(stdout)
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return err
			}
			return encoder.Close()
		},
	}
}

func configPathCommand(stdout io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "path",
		Summary: "Print the config file location",
		Flags:   func() *pflag.FlagSet { return configPathFlag(&configPath) },
		Run: func(ctx context.Context, args []string) error {
			path, err := resolveConfigPath(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, path)
			return nil
		},
	}
}
