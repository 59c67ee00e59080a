// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/quietchat/internal/catalog"
)

// ErrPersistenceLocked is returned when enabling chat persistence.
var ErrPersistenceLocked = errors.New("chat persistence is disabled in this build")

// DefaultSystemPrompt is the system instruction new states start with.
const DefaultSystemPrompt = "You are a helpful assistant running entirely on the user's device."

// Flags are the UI flags derived from state.
type Flags struct {
	Generating     bool
	LoadProgress   int // 0-100
	LoadStatus     string
	TokenCount     int
	ContextWarning bool
}

// Preferences are user settings. Persist is always false.
type Preferences struct {
	SystemPrompt string
	DarkMode     bool
	AutoDelete   bool
	Persist      bool
}

// =============================================================================
// STATE
// =============================================================================

// State is the chat state container. Methods are safe for concurrent use;
// the TUI mutates it from its update loop while a generation goroutine
// streams deltas in.
type State struct {
	mu       sync.RWMutex
	messages []*Message
	model    *catalog.ModelDescriptor
	flags    Flags
	prefs    Preferences
	counter  *TokenCounter
	onScrub  func()
}

// NewState creates an empty state. counter may be nil for the length
// fallback; onScrub runs after every Clear and may be nil.
func NewState(counter *TokenCounter, onScrub func()) *State {
	if counter == nil {
		counter = NewTokenCounterWith(nil)
	}
	return &State{
		counter: counter,
		onScrub: onScrub,
		prefs:   Preferences{SystemPrompt: DefaultSystemPrompt, DarkMode: true},
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds msg to the end of the conversation.
func (s *State) Append(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.flags.TokenCount += s.counter.Count(msg.Content())
	s.updateWarning()
}

// ReplaceLast sets the content of the last message. It is a no-op on an
// empty conversation.
func (s *State) ReplaceLast(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return
	}
	s.messages[len(s.messages)-1].Set(content)
	s.recount()
}

// AppendToLast appends a streamed delta to the last message.
func (s *State) AppendToLast(delta string) {
	if delta == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return
	}
	s.messages[len(s.messages)-1].Append(delta)
	s.flags.TokenCount += s.counter.Count(delta)
	s.updateWarning()
}

// RemoveLast drops the last message, wiping its bytes.
func (s *State) RemoveLast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return
	}
	last := s.messages[len(s.messages)-1]
	last.wipe()
	s.messages[len(s.messages)-1] = nil
	s.messages = s.messages[:len(s.messages)-1]
	s.recount()
}

// Clear overwrites every message with random bytes, empties the list,
// resets the token count and warning, then runs the scrub hook.
func (s *State) Clear() {
	s.mu.Lock()
	for i, m := range s.messages {
		m.wipe()
		s.messages[i] = nil
	}
	s.messages = nil
	s.flags.TokenCount = 0
	s.flags.ContextWarning = false
	hook := s.onScrub
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// SetModel records the active model and re-evaluates the context warning.
func (s *State) SetModel(m *catalog.ModelDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m != nil {
		c := *m
		m = &c
	}
	s.model = m
	s.updateWarning()
}

// SetGenerating sets the generating flag.
func (s *State) SetGenerating(on bool) {
	s.mu.Lock()
	s.flags.Generating = on
	s.mu.Unlock()
}

// SetLoadProgress sets load progress, clamped to 0-100.
func (s *State) SetLoadProgress(percent int, status string) {
	s.mu.Lock()
	s.flags.LoadProgress = max(0, min(100, percent))
	s.flags.LoadStatus = status
	s.mu.Unlock()
}

// SetSystemPrompt sets the system instruction. Blank restores the default.
func (s *State) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	s.prefs.SystemPrompt = prompt
}

// SetDarkMode sets the theme preference.
func (s *State) SetDarkMode(on bool) {
	s.mu.Lock()
	s.prefs.DarkMode = on
	s.mu.Unlock()
}

// SetAutoDelete sets the auto-delete preference.
func (s *State) SetAutoDelete(on bool) {
	s.mu.Lock()
	s.prefs.AutoDelete = on
	s.mu.Unlock()
}

// SetPersist refuses to turn persistence on.
func (s *State) SetPersist(on bool) error {
	if on {
		return ErrPersistenceLocked
	}
	return nil
}

// =============================================================================
// READERS
// =============================================================================

// Messages returns a snapshot of the conversation.
func (s *State) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Last returns a copy of the last message, or nil.
func (s *State) Last() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1].clone()
}

// Len returns the number of messages.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Model returns the active model, or nil.
func (s *State) Model() *catalog.ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil
	}
	m := *s.model
	return &m
}

// Flags returns the current flags.
func (s *State) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Preferences returns the current preferences.
func (s *State) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// recount recomputes the token count. Caller holds mu.
func (s *State) recount() {
	total := 0
	for _, m := range s.messages {
		total += s.counter.Count(m.Content())
	}
	s.flags.TokenCount = total
	s.updateWarning()
}

// updateWarning sets ContextWarning from the token count. Caller holds mu.
func (s *State) updateWarning() {
	if s.model == nil || s.model.ContextWindow <= 0 {
		s.flags.ContextWarning = false
		return
	}
	limit := float64(s.model.ContextWindow) * ContextWarningRatio
	s.flags.ContextWarning = float64(s.flags.TokenCount) >= limit
}
