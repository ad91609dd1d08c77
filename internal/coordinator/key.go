// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"sync"

	"github.com/bureau-foundation/asuku/lib/secret"
)

// leasedKey is the webhook secret shared with in-flight publishes. A
// retired key is closed once its last lease is returned, so replacing
// the secret never waits on an ntfy request.
type leasedKey struct {
	buffer *secret.Buffer

	mu      sync.Mutex
	leases  int
	retired bool
}

func newLeasedKey(buffer *secret.Buffer) *leasedKey {
	if buffer == nil {
		return nil
	}
	return &leasedKey{buffer: buffer}
}

// acquire takes a lease. Nil-safe.
func (k *leasedKey) acquire() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.leases++
	k.mu.Unlock()
}

// release returns a lease, closing the buffer if the key was retired
// and this was the last one. Nil-safe.
func (k *leasedKey) release() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.leases--
	if k.retired && k.leases == 0 {
		k.buffer.Close()
	}
}

// retire closes the buffer now if no lease is held, otherwise when the
// last lease is released. Nil-safe and idempotent.
func (k *leasedKey) retire() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.retired {
		return
	}
	k.retired = true
	if k.leases == 0 {
		k.buffer.Close()
	}
}
