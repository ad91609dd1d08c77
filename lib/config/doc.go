// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the asuku daemon's configuration file.
//
// The file is YAML, at [DefaultPath] unless a --config flag names
// another. Files ending in .json or .jsonc are accepted too: comments
// are stripped and the result decoded by the same YAML decoder, since
// JSON is valid YAML. Fields missing from the file keep their
// [Default] values.
//
// Path fields (socket.path, webhook.secret_file) expand ${HOME} and
// ${VAR:-default} patterns after loading.
//
// [Watch] follows the file and delivers every successfully parsed
// change, so the daemon can apply timeout and webhook settings to a
// running process.
//
// This package depends on no other asuku packages.
package config
