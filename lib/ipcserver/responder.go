// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/asuku/lib/ipcwire"
)

// Responder delivers the single reply to a permission request on the
// connection that carried it.
type Responder interface {
	// Send writes response and closes the connection. Only the first
	// call has any effect; later calls return ErrAlreadyResponded.
	Send(response ipcwire.Response) error

	// Cancel closes the connection without a reply. The hook sees
	// the connection close and falls back to its own prompt.
	Cancel()
}

// ErrAlreadyResponded is returned by Send after the first call.
var ErrAlreadyResponded = errors.New("ipcserver: response already sent")

// writeTimeout bounds a single reply write. A hook that stops reading
// must not pin a daemon goroutine.
const writeTimeout = 10 * time.Second

// connResponder is the Responder for one accepted connection.
type connResponder struct {
	conn   net.Conn
	logger *slog.Logger

	once      sync.Once
	responded atomic.Bool
}

func newConnResponder(conn net.Conn, logger *slog.Logger) *connResponder {
	return &connResponder{conn: conn, logger: logger}
}

func (r *connResponder) Send(response ipcwire.Response) error {
	err := ErrAlreadyResponded
	r.once.Do(func() {
		// Marked before the write so the read side, which observes
		// the close, never mistakes this for a peer disconnect.
		r.responded.Store(true)
		err = r.write(response)
		r.conn.Close()
	})
	return err
}

func (r *connResponder) Cancel() {
	r.once.Do(func() {
		r.responded.Store(true)
		r.conn.Close()
	})
}

// settled reports whether Send or Cancel has run.
func (r *connResponder) settled() bool {
	return r.responded.Load()
}

func (r *connResponder) write(value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ipcwire.WriteFrame(r.conn, body); err != nil {
		r.logger.Debug("failed to write reply", "error", err)
		return err
	}
	return nil
}
