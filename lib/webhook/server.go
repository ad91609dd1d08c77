// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhook receives decision callbacks from the push relay.
//
// The relay reaches the daemon through a tunnel that terminates on
// loopback, so the [Server] only ever binds 127.0.0.1. It speaks just
// enough HTTP/1.1 for one request shape:
//
//	POST /webhook/{allow|deny}/{request-uuid}[?token=<secret>]
//	Authorization: Bearer <secret>
//
// Every response closes the connection. Authentication failures are
// rate limited: once the failure budget is spent, a wrong token is
// answered 429 instead of 403 until it refills. A valid token is
// always accepted.
package webhook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/netutil"
	"github.com/bureau-foundation/asuku/lib/secret"
	"github.com/bureau-foundation/asuku/lib/serverstate"
)

const (
	// maxHeaderBytes caps the request line plus headers.
	maxHeaderBytes = 4096

	// connectionTimeout force-closes connections that have not
	// completed a request by then.
	connectionTimeout = 30 * time.Second

	// drainTimeout and drainLimit bound how long and how much is read
	// from the client after the response, so that closing with
	// unread bytes does not reset the connection before the client
	// sees the response.
	drainTimeout = 500 * time.Millisecond
	drainLimit   = 64 * 1024
)

// Authentication failure budget: DefaultAuthFailureBurst failures,
// refilled at DefaultAuthFailureRate.
var (
	DefaultAuthFailureRate  = rate.Every(6 * time.Second)
	DefaultAuthFailureBurst = 10
)

// ErrInvalidPort is returned by Start for ports outside 0-65535.
var ErrInvalidPort = errors.New("invalid webhook port")

// BindError reports that the listener could not be created.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind webhook server on %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ResponseFunc receives an authenticated decision.
type ResponseFunc func(requestID string, decision ipcwire.Decision)

// Config configures a Server.
type Config struct {
	// OnResponse is called for every authenticated callback, before
	// the 200 is written. Required.
	OnResponse ResponseFunc

	OnStateChange serverstate.Func

	// AuthFailureRate and AuthFailureBurst default to
	// DefaultAuthFailureRate and DefaultAuthFailureBurst.
	AuthFailureRate  rate.Limit
	AuthFailureBurst int

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server is single-use: after Stop, build a new one.
type Server struct {
	onResponse    ResponseFunc
	onStateChange serverstate.Func
	authFailures  *rate.Limiter
	logger        *slog.Logger

	mu          sync.Mutex
	listener    net.Listener
	secret      *secret.Buffer
	connections map[net.Conn]struct{}
	stopped     bool

	activeConnections sync.WaitGroup
}

// New creates a server. Call Start to listen.
func New(config Config) *Server {
	if config.OnResponse == nil {
		panic("webhook.New: OnResponse is required")
	}
	if config.Logger == nil {
		panic("webhook.New: Logger is required")
	}
	if config.AuthFailureRate == 0 {
		config.AuthFailureRate = DefaultAuthFailureRate
	}
	if config.AuthFailureBurst <= 0 {
		config.AuthFailureBurst = DefaultAuthFailureBurst
	}
	return &Server{
		onResponse:    config.OnResponse,
		onStateChange: config.OnStateChange,
		authFailures:  rate.NewLimiter(config.AuthFailureRate, config.AuthFailureBurst),
		logger:        config.Logger,
		connections:   make(map[net.Conn]struct{}),
	}
}

// Start listens on 127.0.0.1:port and serves in the background. Port
// 0 picks a free port; see Addr. The server reads the secret on every
// request but does not own it: the caller closes it after Stop.
func (s *Server) Start(port int, key *secret.Buffer) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if key == nil {
		panic("webhook.Server.Start: secret is required")
	}
	address := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.listener != nil {
		return &BindError{Address: address, Err: errors.New("server already used")}
	}
	listener, err := net.Listen("tcp4", address)
	if err != nil {
		return &BindError{Address: address, Err: err}
	}
	s.listener = listener
	s.secret = key

	s.logger.Info("webhook server listening", "address", listener.Addr().String())
	s.onStateChange.Notify(serverstate.Running())

	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all connections and waits for handlers
// to return. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	listener := s.listener
	if listener != nil {
		listener.Close()
	}
	for conn := range s.connections {
		conn.Close()
	}
	s.mu.Unlock()

	s.activeConnections.Wait()
	if listener == nil {
		return
	}
	s.logger.Info("webhook server stopped")
	s.onStateChange.Notify(serverstate.Stopped())
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("webhook accept failed", "error", err)
			listener.Close()
			s.onStateChange.Notify(serverstate.Failed(err.Error()))
			return
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.connections[conn] = struct{}{}
	s.activeConnections.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()
	conn.Close()
}

// handleConnection reads the request head and answers it.
func (s *Server) handleConnection(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(connectionTimeout))

	buffer := make([]byte, maxHeaderBytes)
	filled := 0
	for {
		n, err := conn.Read(buffer[filled:])
		filled += n
		if bytes.Contains(buffer[:filled], []byte("\r\n\r\n")) {
			status := s.handleRequest(string(buffer[:filled]), conn.RemoteAddr())
			s.respond(conn, status, "")
			return
		}
		if filled == len(buffer) {
			s.respond(conn, http.StatusBadRequest, "Bad Request")
			return
		}
		if err != nil {
			if err == io.EOF {
				s.respond(conn, http.StatusBadRequest, "Incomplete Request")
			} else if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("webhook read failed", "error", err)
			}
			return
		}
	}
}

// handleRequest routes one complete request head and returns the
// status to answer with.
func (s *Server) handleRequest(raw string, remote net.Addr) int {
	requestLine, _, _ := strings.Cut(raw, "\r\n")
	method, _, ok := splitRequestLine(requestLine)
	if !ok {
		return http.StatusBadRequest
	}
	if method != "POST" {
		return http.StatusMethodNotAllowed
	}
	request := Parse(raw)
	if request == nil {
		return http.StatusNotFound
	}

	if !s.authenticate(request.EffectiveToken()) {
		if !s.authFailures.Allow() {
			s.logger.Warn("webhook authentication rate limited", "remote_address", remote.String())
			return http.StatusTooManyRequests
		}
		s.logger.Warn("webhook authentication failed",
			"remote_address", remote.String(),
			"request_id", request.RequestID,
		)
		return http.StatusForbidden
	}

	s.logger.Info("webhook decision received",
		"request_id", request.RequestID,
		"decision", request.Action,
	)
	s.onResponse(request.RequestID, request.Action)
	return http.StatusOK
}

func (s *Server) authenticate(token *string) bool {
	s.mu.Lock()
	key := s.secret
	s.mu.Unlock()

	var valid bool
	key.WithBytes(func(expected []byte) {
		valid = ValidateToken(token, expected)
	})
	return valid
}

// respond writes a plain-text response and closes the connection. An
// empty body uses the status text.
func (s *Server) respond(conn net.Conn, status int, body string) {
	if body == "" {
		body = http.StatusText(status)
	}
	response := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
	if _, err := io.WriteString(conn, response); err != nil {
		s.logger.Debug("writing webhook response", "status", status, "error", err)
		return
	}
	lingeringClose(conn)
}

// lingeringClose half-closes conn and discards what the client still
// sends, so the response is not lost to a reset.
func lingeringClose(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	conn.SetReadDeadline(time.Now().Add(drainTimeout))
	io.Copy(io.Discard, io.LimitReader(conn, drainLimit))
}
