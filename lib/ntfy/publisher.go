// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ntfy publishes permission requests to an ntfy server so they
// reach the user's phone.
//
// Each message carries two HTTP action buttons, Allow and Deny, that
// POST to the daemon's webhook through the user's tunnel with the
// shared secret in an Authorization header. Publishing is best effort:
// the local notification path does not depend on it. A circuit breaker
// stops the daemon from spending a request timeout's worth of HTTP
// attempts on a server that is down.
package ntfy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/netutil"
	"github.com/bureau-foundation/asuku/lib/pending"
	"github.com/bureau-foundation/asuku/lib/secret"
)

// Circuit breaker defaults.
const (
	defaultMaxFailures uint32 = 3
	defaultOpenTimeout        = 60 * time.Second
	defaultInterval           = 5 * time.Minute
)

// publishTimeout bounds one publish request.
const publishTimeout = 10 * time.Second

var (
	ErrInvalidServerURL  = errors.New("ntfy: invalid server URL")
	ErrInsecureServerURL = errors.New("ntfy: refusing plain HTTP to a non-loopback server")
	ErrMissingTopic      = errors.New("ntfy: topic is required")
)

// Config configures a Publisher.
type Config struct {
	// ServerURL is the ntfy server, e.g. https://ntfy.sh. Must be
	// https unless the host is loopback. Required.
	ServerURL string

	// Topic is the ntfy topic. Required.
	Topic string

	// WebhookBaseURL is the public URL that tunnels to the webhook
	// server. When empty, messages are sent without action buttons.
	WebhookBaseURL string

	// Secret is the webhook bearer token put in the action buttons.
	// Required when WebhookBaseURL is set. Not owned by the Publisher.
	Secret *secret.Buffer

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// MaxFailures consecutive failures open the breaker for
	// OpenTimeout. Default 3 and 60s.
	MaxFailures uint32
	OpenTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Publisher sends permission requests to one ntfy topic. Safe for
// concurrent use.
type Publisher struct {
	endpoint       string
	webhookBaseURL string
	secret         *secret.Buffer
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker[string]
	logger         *slog.Logger
}

// New validates config and returns a Publisher.
func New(config Config) (*Publisher, error) {
	if config.Logger == nil {
		panic("ntfy.New: Logger is required")
	}
	switch ValidateServerURL(config.ServerURL) {
	case URLInvalid:
		return nil, fmt.Errorf("%w: %q", ErrInvalidServerURL, config.ServerURL)
	case URLInsecure:
		return nil, fmt.Errorf("%w: %q", ErrInsecureServerURL, config.ServerURL)
	}
	if config.Topic == "" {
		return nil, ErrMissingTopic
	}
	webhookBaseURL := strings.TrimRight(config.WebhookBaseURL, "/")
	if webhookBaseURL != "" && config.Secret == nil {
		return nil, errors.New("ntfy: Secret is required when WebhookBaseURL is set")
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: publishTimeout}
	}
	maxFailures := config.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := config.OpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultOpenTimeout
	}
	logger := config.Logger

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ntfy",
		MaxRequests: 1,
		Interval:    defaultInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ntfy circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Publisher{
		endpoint:       strings.TrimRight(config.ServerURL, "/") + "/" + url.PathEscape(config.Topic),
		webhookBaseURL: webhookBaseURL,
		secret:         config.Secret,
		client:         client,
		breaker:        breaker,
		logger:         logger,
	}, nil
}

// State returns the circuit breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

// PublishPermissionRequest sends request to the topic. While the
// breaker is open it fails fast with gobreaker.ErrOpenState.
func (p *Publisher) PublishPermissionRequest(ctx context.Context, request pending.Request) error {
	messageID, err := p.breaker.Execute(func() (string, error) {
		return p.publish(ctx, request)
	})
	if err != nil {
		return fmt.Errorf("publishing request %s: %w", request.ID, err)
	}
	p.logger.Debug("ntfy notification sent", "request_id", request.ID, "message_id", messageID)
	return nil
}

func (p *Publisher) publish(ctx context.Context, request pending.Request) (string, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		bytes.NewBufferString(MessageBody(request)))
	if err != nil {
		return "", err
	}
	httpRequest.Header.Set("Title", "Permission Request: "+request.Event.ToolName)
	httpRequest.Header.Set("Priority", "high")
	httpRequest.Header.Set("Tags", "warning")
	if p.webhookBaseURL != "" {
		httpRequest.Header.Set("Actions", p.actions(request.ID))
	}

	response, err := p.client.Do(httpRequest)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", fmt.Errorf("ntfy server returned %s: %s", response.Status,
			strings.TrimSpace(netutil.ErrorBody(response.Body)))
	}
	var message struct {
		ID string `json:"id"`
	}
	if err := netutil.DecodeResponse(response.Body, &message); err != nil {
		p.logger.Debug("ntfy response not decodable", "error", err)
	}
	return message.ID, nil
}

// actions builds the ntfy Actions header: one HTTP action per decision.
func (p *Publisher) actions(requestID string) string {
	authorization := "Bearer " + p.secret.String()
	var buttons []string
	for _, decision := range []ipcwire.Decision{ipcwire.Allow, ipcwire.Deny} {
		label := "Allow"
		if decision == ipcwire.Deny {
			label = "Deny"
		}
		target := p.webhookBaseURL + "/webhook/" + string(decision) + "/" + url.PathEscape(requestID)
		buttons = append(buttons, fmt.Sprintf("http, %s, %s, method=POST, headers.Authorization=%s",
			label, target, authorization))
	}
	return strings.Join(buttons, "; ")
}

// MessageBody renders the notification text: tool, working directory,
// and the sanitized command, file, or input.
func MessageBody(request pending.Request) string {
	event := request.Event
	lines := []string{
		"Tool: " + event.ToolName,
		"CWD: " + event.Cwd,
	}
	switch event.ToolName {
	case "Bash":
		if command, ok := event.ToolInput.StringValue("command"); ok {
			lines = append(lines, "Command: "+ipcwire.SanitizeForNotification(command, ipcwire.DefaultNotificationLength))
		}
	case "Write", "Edit":
		if path, ok := event.ToolInput.StringValue("file_path"); ok {
			lines = append(lines, "File: "+path)
		}
	default:
		if event.ToolInput.Len() > 0 {
			lines = append(lines, "Input: "+ipcwire.SanitizeForNotification(event.ToolInput.Describe(), ipcwire.DefaultNotificationLength))
		}
	}
	return strings.Join(lines, "\n")
}

// URLValidation classifies an ntfy server URL.
type URLValidation int

const (
	URLValid URLValidation = iota
	// URLLocalhost is plain HTTP to a loopback host; allowed.
	URLLocalhost
	// URLInsecure is plain HTTP to anything else.
	URLInsecure
	URLInvalid
)

func (v URLValidation) String() string {
	switch v {
	case URLValid:
		return "valid"
	case URLLocalhost:
		return "localhost"
	case URLInsecure:
		return "insecure"
	default:
		return "invalid"
	}
}

// ValidateServerURL requires an http or https URL with a host. Plain
// HTTP is only acceptable to localhost or a loopback address.
func ValidateServerURL(raw string) URLValidation {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return URLInvalid
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		return URLValid
	case "http":
		if isLoopbackHost(parsed.Hostname()) {
			return URLLocalhost
		}
		return URLInsecure
	default:
		return URLInvalid
	}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
