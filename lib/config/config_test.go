// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/asuku/lib/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Timeout.Enabled || cfg.Timeout.Seconds != 280 {
		t.Errorf("timeout = %+v, want enabled with 280s", cfg.Timeout)
	}
	if cfg.Webhook.Enabled || cfg.Webhook.Port != 8945 {
		t.Errorf("webhook = %+v, want disabled on 8945", cfg.Webhook)
	}
	if cfg.Ntfy.ServerURL != "https://ntfy.sh" {
		t.Errorf("ntfy.server_url = %q", cfg.Ntfy.ServerURL)
	}
	if cfg.Throttle.FlushInterval != time.Second || cfg.Throttle.StaleAfter != 10*time.Minute {
		t.Errorf("throttle = %+v", cfg.Throttle)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	if *Default() != *cfg {
		t.Error("Default is not deterministic")
	}
}

func TestEffectiveTimeout(t *testing.T) {
	tests := []struct {
		config TimeoutConfig
		want   time.Duration
	}{
		{TimeoutConfig{Enabled: true, Seconds: 60}, 60 * time.Second},
		{TimeoutConfig{Enabled: true, Seconds: 5}, 10 * time.Second},
		{TimeoutConfig{Enabled: true, Seconds: 0}, 10 * time.Second},
		{TimeoutConfig{Enabled: true, Seconds: 600}, 280 * time.Second},
		{TimeoutConfig{Enabled: true, Seconds: 280}, 280 * time.Second},
	}
	for _, test := range tests {
		got := test.config.EffectiveTimeout()
		if got == nil || *got != test.want {
			t.Errorf("EffectiveTimeout(%+v) = %v, want %s", test.config, got, test.want)
		}
	}
	if got := (TimeoutConfig{Enabled: false, Seconds: 60}).EffectiveTimeout(); got != nil {
		t.Errorf("disabled EffectiveTimeout = %s, want nil", *got)
	}
}

func TestFillGenerated(t *testing.T) {
	cfg := Default()
	if !cfg.FillGenerated() {
		t.Fatal("FillGenerated generated nothing for a default config")
	}
	if cfg.Webhook.Secret == "" || !strings.HasPrefix(cfg.Ntfy.Topic, "asuku-") {
		t.Errorf("generated secret %q, topic %q", cfg.Webhook.Secret, cfg.Ntfy.Topic)
	}
	secret, topic := cfg.Webhook.Secret, cfg.Ntfy.Topic
	if cfg.FillGenerated() {
		t.Error("second FillGenerated generated again")
	}
	if cfg.Webhook.Secret != secret || cfg.Ntfy.Topic != topic {
		t.Error("FillGenerated replaced existing values")
	}

	withFile := Default()
	withFile.Webhook.SecretFile = "/run/secrets/asuku"
	withFile.FillGenerated()
	if withFile.Webhook.Secret != "" {
		t.Error("FillGenerated set a secret alongside secret_file")
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
timeout:
  enabled: false
  seconds: 90
webhook:
  enabled: true
  port: 9000
  secret: s3cret
ntfy:
  enabled: true
  topic: my-topic
  webhook_base_url: https://tunnel.example.com
throttle:
  flush_interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Timeout.Enabled || cfg.Timeout.Seconds != 90 {
		t.Errorf("timeout = %+v", cfg.Timeout)
	}
	if !cfg.Webhook.Enabled || cfg.Webhook.Port != 9000 || cfg.Webhook.Secret != "s3cret" {
		t.Errorf("webhook = %+v", cfg.Webhook)
	}
	if cfg.Ntfy.Topic != "my-topic" || cfg.Ntfy.WebhookBaseURL != "https://tunnel.example.com" {
		t.Errorf("ntfy = %+v", cfg.Ntfy)
	}
	// Unset fields keep their defaults.
	if cfg.Ntfy.ServerURL != DefaultNtfyServerURL {
		t.Errorf("ntfy.server_url = %q, want default", cfg.Ntfy.ServerURL)
	}
	if cfg.Throttle.FlushInterval != 2*time.Second || cfg.Throttle.StaleAfter != 10*time.Minute {
		t.Errorf("throttle = %+v", cfg.Throttle)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
  // Ask for decisions for at most a minute.
  "timeout": {"enabled": true, "seconds": 60},
  /* local tunnel */
  "webhook": {"enabled": true, "port": 8000, "secret": "abc",},
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Timeout.Seconds != 60 || cfg.Webhook.Port != 8000 || cfg.Webhook.Secret != "abc" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadFileErrors(t *testing.T) {
	directory := t.TempDir()
	if _, err := LoadFile(filepath.Join(directory, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadFile(missing) = %v, want fs.ErrNotExist", err)
	}

	invalid := filepath.Join(directory, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("timeout: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(invalid); err == nil {
		t.Error("LoadFile(invalid) succeeded")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("ASUKU_TEST_RUNTIME", "")
	cfg, err := Parse("config.yaml", []byte(`
socket:
  path: ${ASUKU_TEST_RUNTIME:-/run/user/1000}/asuku.sock
webhook:
  secret_file: ${HOME}/.config/asuku/secret
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Socket.Path != "/run/user/1000/asuku.sock" {
		t.Errorf("socket.path = %q", cfg.Socket.Path)
	}
	if cfg.Webhook.SecretFile != "/home/tester/.config/asuku/secret" {
		t.Errorf("webhook.secret_file = %q", cfg.Webhook.SecretFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"webhook port", func(c *Config) { c.Webhook.Enabled = true; c.Webhook.Secret = "x"; c.Webhook.Port = 0 }, "webhook.port"},
		{"webhook secret", func(c *Config) { c.Webhook.Enabled = true }, "webhook.secret"},
		{"ntfy topic", func(c *Config) { c.Ntfy.Enabled = true }, "ntfy.topic"},
		{"timeout seconds", func(c *Config) { c.Timeout.Seconds = -1 }, "timeout.seconds"},
		{"flush interval", func(c *Config) { c.Throttle.FlushInterval = 0 }, "throttle.flush_interval"},
	}
	for _, test := range tests {
		cfg := Default()
		test.modify(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), test.wantErr) {
			t.Errorf("%s: Validate = %v, want error mentioning %s", test.name, err, test.wantErr)
		}
	}

	disabled := Default()
	disabled.Webhook.Port = -5
	if err := disabled.Validate(); err != nil {
		t.Errorf("disabled webhook with bad port: Validate = %v, want nil", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.FillGenerated()
	cfg.Timeout.Seconds = 120
	cfg.Throttle.StaleAfter = 5 * time.Minute

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %o, want 600", info.Mode().Perm())
	}
	directoryInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if directoryInfo.Mode().Perm() != 0o700 {
		t.Errorf("directory mode = %o, want 700", directoryInfo.Mode().Perm())
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded = %+v\nsaved  = %+v", loaded, cfg)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries after Save, want only the config", len(entries))
	}
}

func TestWatchDeliversChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	initial := Default()
	initial.FillGenerated()
	if err := Save(path, initial); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, initial, testutil.Logger(), func(cfg *Config) { changes <- cfg })
	}()
	// Give the watcher time to register before the first write.
	time.Sleep(100 * time.Millisecond)

	updated := *initial
	updated.Timeout.Seconds = 30
	if err := Save(path, &updated); err != nil {
		t.Fatal(err)
	}
	got := testutil.RequireReceive(t, changes, 5*time.Second, "config change")
	if got.Timeout.Seconds != 30 {
		t.Errorf("timeout.seconds = %d, want 30", got.Timeout.Seconds)
	}

	// An unparseable write is skipped, and rewriting the same config
	// delivers nothing.
	if err := os.WriteFile(path, []byte("timeout: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Save(path, &updated); err != nil {
		t.Fatal(err)
	}
	testutil.RequireNoReceive(t, changes, 500*time.Millisecond, "change for identical config")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Watch to return"); err != nil {
		t.Errorf("Watch = %v", err)
	}
}
