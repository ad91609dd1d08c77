// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipcclient is the hook side of the daemon socket.
//
// [Client.SendAndReceive] is used for permission requests: it blocks
// until the daemon replies, with no read timeout of its own, because
// the CLI tool that runs the hook enforces a hard deadline on the whole
// process. [Client.SendOnly] is used for notifications and status
// updates and gives up quickly, since a daemon that is not running
// should cost the tool nothing.
package ipcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
	"github.com/bureau-foundation/asuku/lib/netutil"
)

const (
	// ConnectTimeout bounds the connect phase of every call, and the
	// whole of SendOnly.
	ConnectTimeout = 300 * time.Millisecond

	// MaxRetries is the number of additional attempts SendAndReceive
	// makes after a connection-level failure.
	MaxRetries = 1

	// RetryBackoff is the pause between attempts.
	RetryBackoff = 50 * time.Millisecond
)

var (
	// ErrTimeout reports that the connect phase did not complete in
	// time.
	ErrTimeout = errors.New("connection to asuku daemon timed out")

	// ErrConnectionClosed reports that the daemon closed the
	// connection before a complete reply frame arrived.
	ErrConnectionClosed = errors.New("connection closed before receiving complete response")

	// ErrInvalidResponse reports a reply that arrived intact but could
	// not be decoded.
	ErrInvalidResponse = errors.New("invalid response from asuku daemon")
)

// ConnectionFailedError reports a failure to reach the daemon.
type ConnectionFailedError struct {
	Reason string
	Err    error
}

func (e *ConnectionFailedError) Error() string {
	return "failed to connect to asuku daemon: " + e.Reason
}

func (e *ConnectionFailedError) Unwrap() error { return e.Err }

// Client sends framed messages to the daemon socket. Each call opens
// its own connection.
type Client struct {
	socketPath     string
	connectTimeout time.Duration
	retryBackoff   time.Duration
}

// New returns a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	return &Client{
		socketPath:     socketPath,
		connectTimeout: ConnectTimeout,
		retryBackoff:   RetryBackoff,
	}
}

// SocketPath returns the path the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// SendAndReceive sends message and returns the payload of the reply
// frame. A failure to connect, or a reset while sending, retries the
// whole exchange up to MaxRetries times. A reply that was received is
// returned as is, even if the caller cannot decode it.
//
// Errors are a *ConnectionFailedError, ErrTimeout, or
// ErrConnectionClosed, or ctx's error if ctx ends first.
func (c *Client) SendAndReceive(ctx context.Context, message ipcwire.Message) ([]byte, error) {
	frame, err := ipcwire.EncodeMessage(message)
	if err != nil {
		return nil, err
	}

	var lastError error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		reply, err := c.exchange(ctx, frame)
		if err == nil {
			return reply, nil
		}
		lastError = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastError
}

// Request sends a permission request and decodes the daemon's
// decision. A reply that does not decode, or that answers a different
// request, is ErrInvalidResponse.
func (c *Client) Request(ctx context.Context, event ipcwire.PermissionRequestEvent) (ipcwire.Response, error) {
	reply, err := c.SendAndReceive(ctx, ipcwire.NewMessage(event))
	if err != nil {
		return ipcwire.Response{}, err
	}
	response, err := ipcwire.DecodeResponse(reply)
	if err != nil {
		return ipcwire.Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if response.RequestID != event.RequestID {
		return ipcwire.Response{}, fmt.Errorf("%w: reply for request %q, sent %q",
			ErrInvalidResponse, response.RequestID, event.RequestID)
	}
	return response, nil
}

// SendOnly sends message without waiting for a reply. The whole call,
// connect and write, is bounded by ConnectTimeout. There is no retry.
func (c *Client) SendOnly(ctx context.Context, message ipcwire.Message) error {
	frame, err := ipcwire.EncodeMessage(message)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(frame); err != nil {
		return &ConnectionFailedError{Reason: err.Error(), Err: err}
	}
	return nil
}

// exchange runs one connect, send, receive cycle.
func (c *Client) exchange(ctx context.Context, frame []byte) ([]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(frame); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectionFailedError{Reason: err.Error(), Err: err}
	}

	reply, err := ipcwire.ReadFrame(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ipcwire.ErrFrameTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || netutil.IsExpectedCloseError(err) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return reply, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err == nil {
		return conn, nil
	}
	var netError net.Error
	if errors.As(err, &netError) && netError.Timeout() {
		return nil, ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	return nil, &ConnectionFailedError{Reason: err.Error(), Err: err}
}

// retryable reports whether err came from failing to reach the daemon,
// as opposed to the daemon answering or hanging up.
func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var connectionFailed *ConnectionFailedError
	return errors.As(err, &connectionFailed) && netutil.IsNoListenerError(connectionFailed.Err)
}
