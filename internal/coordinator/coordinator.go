// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator ties the asuku components into one daemon.
//
// A [Coordinator] owns the hook socket server, the pending request
// store, the status throttle, and (when enabled) the loopback webhook
// server and the ntfy publisher. Every decision, whether it arrives
// from the webhook or from an embedding UI, goes through
// [Coordinator.Resolve] so that the store's at-most-once guarantee
// covers all of them.
//
// The coordinator also keeps the views an interactive front end
// needs: the state of each server, the most recent events, and the
// active session list built from throttled status updates. Changes
// are pushed to the callbacks in [Observers]; the same data is
// available by polling.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/asuku/lib/clock"
	"github.com/bureau-foundation/asuku/lib/ipcserver"
	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/ntfy"
	"github.com/bureau-foundation/asuku/lib/pending"
	"github.com/bureau-foundation/asuku/lib/secret"
	"github.com/bureau-foundation/asuku/lib/serverstate"
	"github.com/bureau-foundation/asuku/lib/throttle"
	"github.com/bureau-foundation/asuku/lib/webhook"
)

// publishTimeout bounds one ntfy publish, including the breaker's
// bookkeeping.
const publishTimeout = 15 * time.Second

// Server names one of the coordinator's listeners.
type Server int

const (
	IPCServer Server = iota
	WebhookServer
)

func (s Server) String() string {
	switch s {
	case IPCServer:
		return "ipc"
	case WebhookServer:
		return "webhook"
	default:
		return "unknown"
	}
}

// WebhookSettings configures the webhook server. The coordinator takes
// ownership of Secret and closes it when it is replaced or on Stop.
type WebhookSettings struct {
	Enabled bool
	Port    int
	Secret  *secret.Buffer
}

// NtfySettings configures push notifications. WebhookBaseURL is only
// used while the webhook server is enabled.
type NtfySettings struct {
	Enabled        bool
	ServerURL      string
	Topic          string
	WebhookBaseURL string
}

// Observers receive state changes. Every callback is optional, runs
// without coordinator locks held, and must not block.
type Observers struct {
	OnServerState    func(server Server, state serverstate.State)
	OnPendingChange  func(requests []pending.Request)
	OnRecentEvent    func(event RecentEvent)
	OnSessionsChange func(sessions []SessionStatus)
}

// Config configures a Coordinator.
type Config struct {
	// SocketPath is where the hook socket listens. Required.
	SocketPath string

	// Timeout auto-denies unanswered requests. Nil disables it.
	Timeout *time.Duration

	Webhook WebhookSettings
	Ntfy    NtfySettings

	// FlushInterval and StaleAfter tune the status throttle; zero
	// uses the throttle defaults.
	FlushInterval time.Duration
	StaleAfter    time.Duration

	Observers Observers

	// Clock defaults to the real clock.
	Clock clock.Clock

	// HTTPClient is used by the ntfy publisher. Optional.
	HTTPClient *http.Client

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Coordinator is safe for concurrent use. It is single-use: after
// Stop, build a new one.
type Coordinator struct {
	clock      clock.Clock
	logger     *slog.Logger
	observers  Observers
	httpClient *http.Client

	store    *pending.Store
	throttle *throttle.Throttle
	ipc      *ipcserver.Server

	// timeoutMu is held for reading across each Add so that a
	// concurrent ReconfigureTimeout either sees the new request or
	// the request sees the new timeout.
	timeoutMu sync.RWMutex
	timeout   *time.Duration

	mu           sync.Mutex
	ipcState     serverstate.State
	webhookState serverstate.State
	events       *eventLog
	sessions     map[string]SessionStatus

	// reconfigureMu serializes webhook and ntfy reconfiguration
	// with Stop.
	reconfigureMu   sync.Mutex
	webhook         *webhook.Server
	webhookSettings WebhookSettings
	ntfySettings    NtfySettings

	// keyMu guards the secret and the publisher built from it. A
	// publish leases the key under it and publishes after releasing it.
	keyMu     sync.RWMutex
	key       *leasedKey
	publisher *ntfy.Publisher

	ctx       context.Context
	cancel    context.CancelFunc
	publishes sync.WaitGroup

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Coordinator. Call Start to bind the servers and Run to
// drive the throttle.
func New(config Config) *Coordinator {
	if config.SocketPath == "" {
		panic("coordinator.New: SocketPath is required")
	}
	if config.Logger == nil {
		panic("coordinator.New: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		clock:           config.Clock,
		logger:          config.Logger,
		observers:       config.Observers,
		httpClient:      config.HTTPClient,
		timeout:         copyDuration(config.Timeout),
		events:          newEventLog(config.Clock),
		sessions:        make(map[string]SessionStatus),
		webhookSettings: config.Webhook,
		ntfySettings:    config.Ntfy,
		key:             newLeasedKey(config.Webhook.Secret),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	c.store = pending.New(pending.Config{
		Clock:     config.Clock,
		OnTimeout: c.handleTimeout,
		Logger:    config.Logger.With("component", "pending"),
	})
	c.throttle = throttle.New(throttle.Config{
		Clock:         config.Clock,
		FlushInterval: config.FlushInterval,
		StaleAfter:    config.StaleAfter,
		OnFlush:       c.handleFlush,
		Logger:        config.Logger.With("component", "throttle"),
	})
	c.ipc = ipcserver.New(ipcserver.Config{
		SocketPath: config.SocketPath,
		Handlers: ipcserver.Handlers{
			OnPermissionRequest: c.handlePermissionRequest,
			OnNotification:      c.handleNotification,
			OnStatusUpdate:      c.throttle.Receive,
			OnDisconnect:        c.handleDisconnect,
		},
		OnStateChange: c.stateFunc(IPCServer),
		Logger:        config.Logger.With("component", "ipc"),
	})
	return c
}

// Start binds the hook socket and, if enabled, the webhook server. A
// socket bind failure is returned. A webhook failure is logged and
// reported as the webhook's failed state; the coordinator keeps
// serving hooks without it.
func (c *Coordinator) Start() error {
	if err := c.ipc.Start(); err != nil {
		c.setState(IPCServer, serverstate.Failed(err.Error()))
		return err
	}

	c.reconfigureMu.Lock()
	defer c.reconfigureMu.Unlock()
	c.rebuildPublisher()
	if err := c.startWebhookLocked(); err != nil {
		c.logger.Error("webhook server failed to start", "error", err)
	}
	return nil
}

// Run flushes status updates until ctx is cancelled or Stop is called,
// then stops the coordinator.
func (c *Coordinator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.throttle.Run(groupCtx)
	})
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
		case <-c.done:
		}
		c.Stop()
		return nil
	})
	return group.Wait()
}

// Stop shuts everything down. Hooks still waiting see their connection
// close without a reply and fall back to their own prompt. Safe to
// call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.throttle.Stop()

		c.reconfigureMu.Lock()
		c.cancel()
		if c.webhook != nil {
			c.webhook.Stop()
			c.webhook = nil
		}
		c.reconfigureMu.Unlock()

		// Permission requests only arrive on socket connections, so no
		// publish can start once the socket server has stopped.
		c.ipc.Stop()
		c.publishes.Wait()

		c.keyMu.Lock()
		c.key.retire()
		c.key = nil
		c.publisher = nil
		c.keyMu.Unlock()

		c.store.Shutdown()
		close(c.done)
		c.logger.Info("coordinator stopped")
	})
}

// Done is closed once Stop has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Resolve delivers decision for requestID. This is the single path for
// decisions from every source. Returns false if the request is no
// longer pending.
func (c *Coordinator) Resolve(requestID string, decision ipcwire.Decision) bool {
	request, _ := c.store.Get(requestID)
	if !c.store.Resolve(requestID, decision) {
		c.logger.Debug("decision for request that is no longer pending",
			"request_id", requestID,
			"decision", decision,
		)
		return false
	}
	c.logger.Info("permission request resolved",
		"request_id", requestID,
		"decision", decision,
	)
	c.record(RecentEvent{
		Kind:      EventPermissionResponse,
		RequestID: requestID,
		SessionID: request.Event.SessionID,
		ToolName:  request.Event.ToolName,
		Decision:  decision,
	})
	c.notifyPending()
	return true
}

// ReconfigureTimeout applies timeout to every pending request and to
// requests that arrive later. Nil disables auto-deny.
func (c *Coordinator) ReconfigureTimeout(timeout *time.Duration) {
	c.timeoutMu.Lock()
	c.timeout = copyDuration(timeout)
	c.store.RescheduleTimeouts(timeout)
	c.timeoutMu.Unlock()
	c.notifyPending()
}

// ReconfigureWebhook stops the running webhook server, if any, and
// starts a new one for settings. The previous secret is closed unless
// settings reuses it. A bind failure is returned and also reported as
// the webhook's failed state.
func (c *Coordinator) ReconfigureWebhook(settings WebhookSettings) error {
	if settings.Enabled && settings.Secret == nil {
		return errors.New("webhook enabled without a secret")
	}

	c.reconfigureMu.Lock()
	defer c.reconfigureMu.Unlock()
	if c.isStopped() {
		if settings.Secret != nil {
			settings.Secret.Close()
		}
		return errors.New("coordinator stopped")
	}

	if c.webhook != nil {
		c.webhook.Stop()
		c.webhook = nil
	}
	c.webhookSettings = settings

	// The key and the publisher built from it change together, so a
	// publish never leases one key while using the other.
	c.keyMu.Lock()
	previous := c.key
	if previous == nil || previous.buffer != settings.Secret {
		c.key = newLeasedKey(settings.Secret)
	}
	c.rebuildPublisherLocked()
	c.keyMu.Unlock()
	if previous != nil && previous.buffer != settings.Secret {
		previous.retire()
	}

	return c.startWebhookLocked()
}

// ReconfigureNtfy replaces the ntfy publisher. An invalid
// configuration disables publishing and is returned.
func (c *Coordinator) ReconfigureNtfy(settings NtfySettings) error {
	c.reconfigureMu.Lock()
	defer c.reconfigureMu.Unlock()
	c.ntfySettings = settings
	return c.rebuildPublisher()
}

// PendingRequests returns the pending requests, oldest first.
func (c *Coordinator) PendingRequests() []pending.Request {
	return c.store.PendingRequests()
}

// Timeout returns the timeout applied to new requests.
func (c *Coordinator) Timeout() *time.Duration {
	c.timeoutMu.RLock()
	defer c.timeoutMu.RUnlock()
	return copyDuration(c.timeout)
}

// ServerState returns the current state of server.
func (c *Coordinator) ServerState(server Server) serverstate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if server == WebhookServer {
		return c.webhookState
	}
	return c.ipcState
}

// SocketPath returns the hook socket path.
func (c *Coordinator) SocketPath() string {
	return c.ipc.SocketPath()
}

// WebhookAddr returns the webhook server's bound address, or nil when
// it is not running.
func (c *Coordinator) WebhookAddr() net.Addr {
	c.reconfigureMu.Lock()
	defer c.reconfigureMu.Unlock()
	if c.webhook == nil {
		return nil
	}
	return c.webhook.Addr()
}

func (c *Coordinator) handlePermissionRequest(event ipcwire.PermissionRequestEvent, responder ipcserver.Responder) {
	c.logger.Info("permission request received",
		"request_id", event.RequestID,
		"session_id", event.SessionID,
		"tool", event.ToolName,
	)
	c.timeoutMu.RLock()
	c.store.Add(event, responder, c.timeout)
	c.timeoutMu.RUnlock()
	c.notifyPending()
	c.publish(event.RequestID)
}

func (c *Coordinator) handleNotification(event ipcwire.NotificationEvent) {
	c.record(RecentEvent{
		Kind:      EventNotification,
		SessionID: event.SessionID,
		Title:     ipcwire.SanitizeForNotification(event.Title, ipcwire.DefaultNotificationLength),
		Body:      ipcwire.SanitizeForNotification(event.Body, ipcwire.DefaultNotificationLength),
	})
}

func (c *Coordinator) handleDisconnect(requestID string) {
	c.store.Remove(requestID)
	c.notifyPending()
}

func (c *Coordinator) handleTimeout(requestID string) {
	c.record(RecentEvent{
		Kind:      EventTimeout,
		RequestID: requestID,
		Decision:  ipcwire.Deny,
	})
	c.notifyPending()
}

func (c *Coordinator) handleWebhookResponse(requestID string, decision ipcwire.Decision) {
	c.Resolve(requestID, decision)
}

// publish sends requestID to ntfy in the background.
func (c *Coordinator) publish(requestID string) {
	c.keyMu.RLock()
	enabled := c.publisher != nil
	c.keyMu.RUnlock()
	if !enabled || c.ctx.Err() != nil {
		return
	}
	request, ok := c.store.Get(requestID)
	if !ok {
		return
	}

	c.publishes.Add(1)
	go func() {
		defer c.publishes.Done()
		c.keyMu.RLock()
		publisher, key := c.publisher, c.key
		key.acquire()
		c.keyMu.RUnlock()
		defer key.release()
		if publisher == nil {
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, publishTimeout)
		defer cancel()
		if err := publisher.PublishPermissionRequest(ctx, request); err != nil {
			c.logger.Warn("ntfy publish failed", "request_id", requestID, "error", err)
		}
	}()
}

// startWebhookLocked starts a webhook server for c.webhookSettings.
// Must be called with reconfigureMu held.
func (c *Coordinator) startWebhookLocked() error {
	settings := c.webhookSettings
	if !settings.Enabled {
		return nil
	}
	if settings.Secret == nil {
		err := errors.New("webhook enabled without a secret")
		c.setState(WebhookServer, serverstate.Failed(err.Error()))
		return err
	}
	server := webhook.New(webhook.Config{
		OnResponse:    c.handleWebhookResponse,
		OnStateChange: c.stateFunc(WebhookServer),
		Logger:        c.logger.With("component", "webhook"),
	})
	if err := server.Start(settings.Port, settings.Secret); err != nil {
		c.setState(WebhookServer, serverstate.Failed(err.Error()))
		return err
	}
	c.webhook = server
	return nil
}

// rebuildPublisher replaces the publisher for the current ntfy
// settings and secret. Must be called with reconfigureMu held.
func (c *Coordinator) rebuildPublisher() error {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	return c.rebuildPublisherLocked()
}

// rebuildPublisherLocked is rebuildPublisher with keyMu already held.
func (c *Coordinator) rebuildPublisherLocked() error {
	c.publisher = nil

	settings := c.ntfySettings
	if !settings.Enabled {
		return nil
	}
	config := ntfy.Config{
		ServerURL:  settings.ServerURL,
		Topic:      settings.Topic,
		HTTPClient: c.httpClient,
		Logger:     c.logger.With("component", "ntfy"),
	}
	if c.webhookSettings.Enabled && c.key != nil {
		config.WebhookBaseURL = settings.WebhookBaseURL
		config.Secret = c.key.buffer
	}
	publisher, err := ntfy.New(config)
	if err != nil {
		c.logger.Warn("ntfy disabled by invalid configuration", "error", err)
		return err
	}
	c.publisher = publisher
	return nil
}

func (c *Coordinator) stateFunc(server Server) serverstate.Func {
	return func(state serverstate.State) {
		c.setState(server, state)
	}
}

func (c *Coordinator) setState(server Server, state serverstate.State) {
	c.mu.Lock()
	if server == WebhookServer {
		c.webhookState = state
	} else {
		c.ipcState = state
	}
	c.mu.Unlock()

	c.logger.Debug("server state changed", "server", server.String(), "state", state.String())
	if c.observers.OnServerState != nil {
		c.observers.OnServerState(server, state)
	}
}

func (c *Coordinator) notifyPending() {
	if c.observers.OnPendingChange != nil {
		c.observers.OnPendingChange(c.store.PendingRequests())
	}
}

func (c *Coordinator) isStopped() bool {
	return c.ctx.Err() != nil
}

func sortSessions(sessions []SessionStatus) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	value := *d
	return &value
}
