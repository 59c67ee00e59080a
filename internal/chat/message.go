// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single chat turn. The zero value is not usable; use
// NewMessage.
type Message struct {
	ID        string
	Role      Role
	Timestamp time.Time

	buf []byte
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Timestamp: time.Now(),
		buf:       []byte(content),
	}
}

// Content returns the message text.
func (m *Message) Content() string {
	return string(m.buf)
}

// Len returns the content length in bytes.
func (m *Message) Len() int {
	return len(m.buf)
}

// Append adds a streamed delta.
func (m *Message) Append(delta string) {
	m.buf = append(m.buf, delta...)
}

// Set replaces the content, wiping the old bytes first.
func (m *Message) Set(content string) {
	m.wipe()
	m.buf = append(m.buf[:0], content...)
}

// Preview returns at most maxLen runes of content.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content())
	if len(runes) <= maxLen || maxLen < 4 {
		return string(runes[:min(len(runes), max(maxLen, 0))])
	}
	return string(runes[:maxLen-3]) + "..."
}

// wipe overwrites the buffer with random bytes. Go strings already handed
// out by Content are copies and are not reached.
func (m *Message) wipe() {
	if len(m.buf) == 0 {
		return
	}
	if _, err := rand.Read(m.buf); err != nil {
		clear(m.buf)
	}
	m.buf = m.buf[:0]
}

// clone returns a copy safe to hand outside the state lock.
func (m *Message) clone() *Message {
	c := *m
	c.buf = append([]byte(nil), m.buf...)
	return &c
}
