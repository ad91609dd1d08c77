// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/asuku/lib/config"
	"github.com/bureau-foundation/asuku/lib/testutil"
)

func TestLoadSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhook-secret")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	key, err := LoadSecret(config.WebhookConfig{Secret: "inline", SecretFile: path})
	if err != nil {
		t.Fatalf("LoadSecret(file): %v", err)
	}
	if got := key.String(); got != "from-file" {
		t.Errorf("secret = %q, want the file's contents", got)
	}
	key.Close()

	key, err = LoadSecret(config.WebhookConfig{Secret: "inline"})
	if err != nil || key.String() != "inline" {
		t.Errorf("LoadSecret(inline) = %v, %v", key, err)
	}
	key.Close()

	key, err = LoadSecret(config.WebhookConfig{})
	if key != nil || err != nil {
		t.Errorf("LoadSecret(empty) = %v, %v, want nil, nil", key, err)
	}

	if _, err := LoadSecret(config.WebhookConfig{SecretFile: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("LoadSecret accepted a missing secret file")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Webhook.Enabled = true
	cfg.Webhook.Secret = "s3cret"
	cfg.Timeout.Seconds = 60

	built, err := FromConfig(cfg, "/tmp/asuku.sock", testutil.Logger())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer built.Webhook.Secret.Close()
	if built.SocketPath != "/tmp/asuku.sock" {
		t.Errorf("SocketPath = %q", built.SocketPath)
	}
	if built.Timeout == nil || *built.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", built.Timeout)
	}
	if !built.Webhook.Enabled || built.Webhook.Port != config.DefaultWebhookPort || built.Webhook.Secret.String() != "s3cret" {
		t.Errorf("Webhook = %+v", built.Webhook)
	}
	if built.FlushInterval != time.Second || built.StaleAfter != 10*time.Minute {
		t.Errorf("throttle = %v/%v", built.FlushInterval, built.StaleAfter)
	}
}

func TestApplyConfig(t *testing.T) {
	h := newHarness(t, nil)
	previous := config.Default()
	next := *previous

	next.Timeout.Enabled = false
	next.Webhook = config.WebhookConfig{Enabled: true, Port: 0, Secret: "s3cret"}
	if err := h.ApplyConfig(previous, &next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if h.Timeout() != nil {
		t.Errorf("Timeout = %v after disabling", *h.Timeout())
	}
	if h.WebhookAddr() == nil {
		t.Error("webhook not started by ApplyConfig")
	}

	current := next
	next.Ntfy = config.NtfyConfig{Enabled: true, ServerURL: "ftp://example.com", Topic: "t"}
	err := h.ApplyConfig(&current, &next)
	if err == nil || !strings.Contains(err.Error(), "ntfy") {
		t.Errorf("ApplyConfig with a bad ntfy server = %v, want an ntfy error", err)
	}
	if h.WebhookAddr() == nil {
		t.Error("unchanged webhook was restarted or stopped")
	}
}
