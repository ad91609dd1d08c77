// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework shared by the asuku
// daemon and hook binaries.
//
// A [Command] is a node in a tree: a name, an optional [pflag.FlagSet]
// factory, nested subcommands, and a Run function. [Command.Execute]
// routes positional arguments down the tree, parses flags for the
// selected node, and prints structured help. Unknown subcommands and
// flags get a "did you mean" suggestion when a known name is within a
// small edit distance.
//
// [ExitError] carries a non-zero exit code for commands that have
// already written their own output. [NewCommandLogger] builds the
// stderr logger used by both binaries.
package cli
