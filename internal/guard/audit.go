// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"sync"
	"time"
)

// DefaultAuditCapacity is the ring size used when none is configured.
const DefaultAuditCapacity = 100

// NetworkAuditEntry records one gate decision.
type NetworkAuditEntry struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	Method    string    `json:"method"`
}

// AuditLog is a fixed-capacity FIFO of gate decisions. When full, the
// oldest entry is overwritten. It is never written to disk.
type AuditLog struct {
	buf     []NetworkAuditEntry
	head    int // next write position
	full    bool
	blocked int
	mu      sync.RWMutex
}

// NewAuditLog creates an audit log holding at most capacity entries.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{buf: make([]NetworkAuditEntry, capacity)}
}

// Append records an entry, evicting the oldest one when the ring is full.
func (a *AuditLog) Append(e NetworkAuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.full && !a.buf[a.head].Allowed {
		a.blocked--
	}
	a.buf[a.head] = e
	if !e.Allowed {
		a.blocked++
	}
	a.head = (a.head + 1) % len(a.buf)
	if a.head == 0 {
		a.full = true
	}
}

// Entries returns a copy of the log, oldest first.
func (a *AuditLog) Entries() []NetworkAuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.full {
		out := make([]NetworkAuditEntry, a.head)
		copy(out, a.buf[:a.head])
		return out
	}

	// Wrap-around: head -> end + start -> head
	out := make([]NetworkAuditEntry, 0, len(a.buf))
	out = append(out, a.buf[a.head:]...)
	out = append(out, a.buf[:a.head]...)
	return out
}

// Len returns the number of entries currently held.
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.full {
		return len(a.buf)
	}
	return a.head
}

// Cap returns the ring capacity.
func (a *AuditLog) Cap() int {
	return len(a.buf)
}

// Blocked returns how many held entries were blocked decisions.
func (a *AuditLog) Blocked() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.blocked
}

// Reset drops every entry.
func (a *AuditLog) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.buf)
	a.head = 0
	a.full = false
	a.blocked = 0
}
