// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/asuku/lib/config"
	"github.com/bureau-foundation/asuku/lib/secret"
)

// LoadSecret returns the webhook secret cfg names: the contents of
// SecretFile when set, otherwise Secret. Returns nil when neither is
// set. The caller owns the returned buffer.
func LoadSecret(cfg config.WebhookConfig) (*secret.Buffer, error) {
	if cfg.SecretFile != "" {
		key, err := secret.ReadFile(cfg.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("reading webhook secret: %w", err)
		}
		return key, nil
	}
	if cfg.Secret == "" {
		return nil, nil
	}
	return secret.NewFromString(cfg.Secret)
}

// FromConfig builds a coordinator Config for cfg, loading the webhook
// secret. The returned Config owns the secret; pass it to New, which
// takes ownership.
func FromConfig(cfg *config.Config, socketPath string, logger *slog.Logger) (Config, error) {
	key, err := LoadSecret(cfg.Webhook)
	if err != nil {
		return Config{}, err
	}
	return Config{
		SocketPath:    socketPath,
		Timeout:       cfg.Timeout.EffectiveTimeout(),
		Webhook:       webhookSettings(cfg.Webhook, key),
		Ntfy:          ntfySettings(cfg.Ntfy),
		FlushInterval: cfg.Throttle.FlushInterval,
		StaleAfter:    cfg.Throttle.StaleAfter,
		Logger:        logger,
	}, nil
}

// ApplyConfig reconfigures the running coordinator for the differences
// between previous and next. The socket path and throttle settings
// only take effect on restart.
func (c *Coordinator) ApplyConfig(previous, next *config.Config) error {
	var errs []error

	if previous.Timeout != next.Timeout {
		c.logger.Info("applying timeout configuration",
			"enabled", next.Timeout.Enabled,
			"seconds", next.Timeout.Seconds,
		)
		c.ReconfigureTimeout(next.Timeout.EffectiveTimeout())
	}

	if previous.Webhook != next.Webhook {
		key, err := LoadSecret(next.Webhook)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.logger.Info("applying webhook configuration",
				"enabled", next.Webhook.Enabled,
				"port", next.Webhook.Port,
			)
			if err := c.ReconfigureWebhook(webhookSettings(next.Webhook, key)); err != nil {
				errs = append(errs, fmt.Errorf("webhook: %w", err))
			}
		}
	}

	if previous.Ntfy != next.Ntfy {
		c.logger.Info("applying ntfy configuration", "enabled", next.Ntfy.Enabled)
		if err := c.ReconfigureNtfy(ntfySettings(next.Ntfy)); err != nil {
			errs = append(errs, fmt.Errorf("ntfy: %w", err))
		}
	}

	if previous.Socket != next.Socket || previous.Throttle != next.Throttle {
		c.logger.Warn("socket and throttle changes take effect after a restart")
	}
	return errors.Join(errs...)
}

func webhookSettings(cfg config.WebhookConfig, key *secret.Buffer) WebhookSettings {
	return WebhookSettings{
		Enabled: cfg.Enabled,
		Port:    cfg.Port,
		Secret:  key,
	}
}

func ntfySettings(cfg config.NtfyConfig) NtfySettings {
	return NtfySettings{
		Enabled:        cfg.Enabled,
		ServerURL:      cfg.ServerURL,
		Topic:          cfg.Topic,
		WebhookBaseURL: cfg.WebhookBaseURL,
	}
}
