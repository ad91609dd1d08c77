// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Timeout bounds, in seconds. The CLI tool kills a hook after 300s,
// so the daemon must auto-deny comfortably before that.
const (
	MinTimeoutSeconds     = 10
	MaxTimeoutSeconds     = 280
	DefaultTimeoutSeconds = 280
)

const (
	DefaultWebhookPort   = 8945
	DefaultNtfyServerURL = "https://ntfy.sh"
)

// Config is the daemon configuration. All fields are comparable, so
// two configs can be compared with ==.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Timeout  TimeoutConfig  `yaml:"timeout"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

// SocketConfig locates the hook socket.
type SocketConfig struct {
	// Path overrides socket path resolution when non-empty.
	Path string `yaml:"path"`
}

// TimeoutConfig controls auto-deny of unanswered requests.
type TimeoutConfig struct {
	Enabled bool `yaml:"enabled"`
	Seconds int  `yaml:"seconds"`
}

// EffectiveTimeout returns the timeout to apply to pending requests,
// clamped to [MinTimeoutSeconds, MaxTimeoutSeconds], or nil when
// timeouts are disabled.
func (t TimeoutConfig) EffectiveTimeout() *time.Duration {
	if !t.Enabled {
		return nil
	}
	seconds := min(max(t.Seconds, MinTimeoutSeconds), MaxTimeoutSeconds)
	timeout := time.Duration(seconds) * time.Second
	return &timeout
}

// WebhookConfig configures the loopback callback server.
type WebhookConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`

	// Secret is the shared bearer token. SecretFile, if set, takes
	// precedence and names a file holding it.
	Secret     string `yaml:"secret,omitempty"`
	SecretFile string `yaml:"secret_file,omitempty"`
}

// NtfyConfig configures push notifications.
type NtfyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ServerURL string `yaml:"server_url"`
	Topic     string `yaml:"topic"`

	// WebhookBaseURL is the public tunnel URL that forwards to the
	// webhook server. Action buttons are only attached when set.
	WebhookBaseURL string `yaml:"webhook_base_url"`
}

// ThrottleConfig tunes status update coalescing.
type ThrottleConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// Default returns the configuration used for anything the file does
// not set. It leaves the webhook secret and ntfy topic empty; see
// FillGenerated.
func Default() *Config {
	return &Config{
		Timeout: TimeoutConfig{
			Enabled: true,
			Seconds: DefaultTimeoutSeconds,
		},
		Webhook: WebhookConfig{
			Port: DefaultWebhookPort,
		},
		Ntfy: NtfyConfig{
			ServerURL: DefaultNtfyServerURL,
		},
		Throttle: ThrottleConfig{
			FlushInterval: time.Second,
			StaleAfter:    10 * time.Minute,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/asuku/config.yaml, falling back
// to the platform user config directory.
func DefaultPath() (string, error) {
	directory, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(directory, "asuku", "config.yaml"), nil
}

// LoadFile loads path over Default. A missing file is an error that
// satisfies errors.Is(err, fs.ErrNotExist).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over Default. The name's extension selects JSONC
// handling; it is otherwise used only in error messages.
func Parse(name string, data []byte) (*Config, error) {
	cfg := Default()
	if isJSON(name) {
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func isJSON(name string) bool {
	extension := strings.ToLower(filepath.Ext(name))
	return extension == ".json" || extension == ".jsonc"
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Socket.Path = expandVars(c.Socket.Path, vars)
	c.Webhook.SecretFile = expandVars(c.Webhook.SecretFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Only sections that
// are enabled are checked.
func (c *Config) Validate() error {
	var errs []error

	if c.Timeout.Seconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout.seconds must be positive, got %d", c.Timeout.Seconds))
	}
	if c.Webhook.Enabled {
		if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
			errs = append(errs, fmt.Errorf("webhook.port must be in 1-65535, got %d", c.Webhook.Port))
		}
		if c.Webhook.Secret == "" && c.Webhook.SecretFile == "" {
			errs = append(errs, errors.New("webhook.secret or webhook.secret_file is required when the webhook is enabled"))
		}
	}
	if c.Ntfy.Enabled {
		if c.Ntfy.ServerURL == "" {
			errs = append(errs, errors.New("ntfy.server_url is required when ntfy is enabled"))
		}
		if c.Ntfy.Topic == "" {
			errs = append(errs, errors.New("ntfy.topic is required when ntfy is enabled"))
		}
	}
	if c.Throttle.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("throttle.flush_interval must be positive, got %s", c.Throttle.FlushInterval))
	}
	if c.Throttle.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("throttle.stale_after must be positive, got %s", c.Throttle.StaleAfter))
	}

	return errors.Join(errs...)
}

// FillGenerated generates the values that must be random per install:
// the webhook secret (unless a secret file is configured) and the ntfy
// topic. Returns true if anything was generated, in which case the
// caller should Save so the values survive a restart.
func (c *Config) FillGenerated() bool {
	generated := false
	if c.Webhook.Secret == "" && c.Webhook.SecretFile == "" {
		c.Webhook.Secret = uuid.NewString()
		generated = true
	}
	if c.Ntfy.Topic == "" {
		c.Ntfy.Topic = "asuku-" + uuid.NewString()
		generated = true
	}
	return generated
}

// Save writes cfg to path as YAML with mode 0600, creating the parent
// directory (0700) if needed. The file is replaced atomically.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}

	temporary, err := os.CreateTemp(directory, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temporary config: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("syncing config: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing config: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
