// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipcserver accepts hook connections on the daemon's Unix
// socket.
//
// Each connection carries exactly one framed [ipcwire.Message].
// Notifications, status updates, heartbeats, and unknown payloads are
// dispatched and the connection is closed. A permission request keeps
// its connection open: the handler receives a [Responder] bound to it,
// and the server keeps reading so that a hook which gives up (the CLI
// tool killed it, or it timed out) is reported through OnDisconnect.
//
// The server never restarts itself. Listener failures are reported as
// a [serverstate.Failed] transition and the owner decides what to do.
package ipcserver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/netutil"
	"github.com/bureau-foundation/asuku/lib/serverstate"
	"github.com/bureau-foundation/asuku/lib/socketpath"
)

// initialReadTimeout is how long a new connection has to deliver its
// frame. Hooks write immediately after connecting.
const initialReadTimeout = 30 * time.Second

// readChunkSize is the size of each read into the connection buffer.
const readChunkSize = 64 * 1024

// liveProbeTimeout bounds the dial used to detect a live listener on
// the socket path before it is replaced.
const liveProbeTimeout = 200 * time.Millisecond

// ErrSocketInUse is wrapped in a BindError when another process is
// still accepting connections on the socket path.
var ErrSocketInUse = errors.New("socket is in use by a live listener")

// BindError reports that the server could not take ownership of its
// socket path.
type BindError struct {
	Path string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s: %v", e.Path, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Handlers receives decoded messages. Nil handlers are skipped. The
// server calls handlers from per-connection goroutines, concurrently.
type Handlers struct {
	// OnPermissionRequest receives a permission request and the
	// Responder for its connection. The handler must arrange for
	// Send or Cancel to be called eventually; it must not block.
	OnPermissionRequest func(ipcwire.PermissionRequestEvent, Responder)

	OnNotification func(ipcwire.NotificationEvent)

	OnStatusUpdate func(ipcwire.StatusUpdateEvent)

	// OnDisconnect is called with the request ID when a connection
	// carrying a permission request closes before a reply was sent.
	OnDisconnect func(requestID string)
}

// Config configures a Server.
type Config struct {
	// SocketPath is the filesystem path to listen on. Required.
	SocketPath string

	Handlers Handlers

	// OnStateChange receives Running after Start, Failed when the
	// accept loop dies, and Stopped after Stop.
	OnStateChange serverstate.Func

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server is the hook-facing socket server. A Server is single-use:
// after Stop, build a new one.
type Server struct {
	socketPath    string
	handlers      Handlers
	onStateChange serverstate.Func
	logger        *slog.Logger

	mu          sync.Mutex
	listener    net.Listener
	connections map[net.Conn]struct{}
	stopped     bool

	ready chan struct{}

	// activeConnections tracks connection goroutines so Stop can
	// wait for them.
	activeConnections sync.WaitGroup
}

// New creates a server for config. Call Start to begin listening.
func New(config Config) *Server {
	if config.SocketPath == "" {
		panic("ipcserver.New: SocketPath is required")
	}
	if config.Logger == nil {
		panic("ipcserver.New: Logger is required")
	}
	return &Server{
		socketPath:    config.SocketPath,
		handlers:      config.Handlers,
		onStateChange: config.OnStateChange,
		logger:        config.Logger,
		connections:   make(map[net.Conn]struct{}),
		ready:         make(chan struct{}),
	}
}

// Ready returns a channel that is closed once Start has bound the
// socket.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// SocketPath returns the configured socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start binds the socket and begins accepting connections in the
// background. A stale socket file is removed first; a socket with a
// live listener behind it is left alone and Start fails with a
// BindError wrapping ErrSocketInUse.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return &BindError{Path: s.socketPath, Err: errors.New("server already stopped")}
	}
	if s.listener != nil {
		return &BindError{Path: s.socketPath, Err: errors.New("server already started")}
	}

	if err := s.removeStaleSocket(); err != nil {
		return &BindError{Path: s.socketPath, Err: err}
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return &BindError{Path: s.socketPath, Err: err}
	}
	if err := socketpath.SetSocketPermissions(s.socketPath); err != nil {
		listener.Close()
		return &BindError{Path: s.socketPath, Err: err}
	}
	s.listener = listener
	close(s.ready)

	s.logger.Info("ipc server listening", "socket_path", s.socketPath)
	s.onStateChange.Notify(serverstate.Running())

	go s.acceptLoop(listener)
	return nil
}

// removeStaleSocket clears the way for Listen. Anything other than a
// socket at the path is left in place and reported.
func (s *Server) removeStaleSocket() error {
	info, err := os.Lstat(s.socketPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", s.socketPath)
	}
	if conn, err := net.DialTimeout("unix", s.socketPath, liveProbeTimeout); err == nil {
		conn.Close()
		return ErrSocketInUse
	}
	return socketpath.RemoveIfExists(s.socketPath)
}

// Stop closes the listener and every open connection, waits for
// connection goroutines to finish, and removes the socket file.
// Connections holding a permission request are reported through
// OnDisconnect. Safe to call more than once, and before Start.
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
	if err := socketpath.RemoveIfExists(s.socketPath); err != nil {
		s.logger.Warn("removing socket file", "socket_path", s.socketPath, "error", err)
	}
	s.logger.Info("ipc server stopped", "socket_path", s.socketPath)
	s.onStateChange.Notify(serverstate.Stopped())
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("ipc accept failed", "socket_path", s.socketPath, "error", err)
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

// track registers conn for Stop. Returns false if the server is
// already stopping.
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

// handleConnection reads until one frame is complete, then dispatches
// it. EOF before a complete frame drops the connection silently.
func (s *Server) handleConnection(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(initialReadTimeout))

	var buffer []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := conn.Read(chunk)
		buffer = append(buffer, chunk[:n]...)

		payload, _, err := ipcwire.DecodeFrame(buffer)
		if err == nil {
			s.dispatch(conn, payload)
			return
		}
		if errors.Is(err, ipcwire.ErrFrameTooLarge) {
			s.logger.Warn("dropping connection with oversized frame")
			return
		}
		if readErr != nil {
			if !netutil.IsExpectedCloseError(readErr) {
				s.logger.Debug("ipc read failed before a complete frame", "error", readErr)
			}
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, payload []byte) {
	responder := newConnResponder(conn, s.logger)

	message, err := ipcwire.DecodeMessage(payload)
	if err != nil {
		s.logger.Warn("invalid ipc message", "error", err)
		responder.write(ipcwire.NewErrorResponse("Invalid message format: " + err.Error()))
		return
	}
	if err := message.CheckVersion(); err != nil {
		s.logger.Warn("rejecting ipc message", "error", err)
		responder.write(ipcwire.NewErrorResponse(fmt.Sprintf(
			"Protocol version mismatch: expected %d, got %d", ipcwire.ProtocolVersion, message.ProtocolVersion)))
		return
	}

	switch event := message.Payload.(type) {
	case ipcwire.PermissionRequestEvent:
		if s.handlers.OnPermissionRequest == nil {
			return
		}
		s.handlers.OnPermissionRequest(event, responder)
		s.awaitSettlement(conn, responder, event.RequestID)
	case ipcwire.NotificationEvent:
		if s.handlers.OnNotification != nil {
			s.handlers.OnNotification(event)
		}
	case ipcwire.StatusUpdateEvent:
		if s.handlers.OnStatusUpdate != nil {
			s.handlers.OnStatusUpdate(event)
		}
	case ipcwire.Heartbeat:
	case ipcwire.Unknown:
		s.logger.Debug("ignoring unknown ipc payload", "type", event.Tag)
	}
}

// awaitSettlement holds a permission request's connection open until
// either the responder settles it (which closes the connection and
// ends the read) or the peer goes away. Bytes the hook sends after
// its frame are discarded.
func (s *Server) awaitSettlement(conn net.Conn, responder *connResponder, requestID string) {
	conn.SetReadDeadline(time.Time{})
	discard := make([]byte, 512)
	for {
		if _, err := conn.Read(discard); err != nil {
			break
		}
	}
	if responder.settled() {
		return
	}
	s.logger.Info("hook disconnected before a decision", "request_id", requestID)
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(requestID)
	}
}
