// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package view is the three-screen navigation shell: landing, model
// selection and chat.
package view

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/quietchat/internal/inference"
)

// View names a screen.
type View int

const (
	Landing View = iota
	ModelSelect
	Chat
)

func (v View) String() string {
	switch v {
	case Landing:
		return "landing"
	case ModelSelect:
		return "model-select"
	case Chat:
		return "chat"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// ErrInvalidTransition is returned for any move the shell does not allow.
var ErrInvalidTransition = errors.New("invalid view transition")

// ErrNoModel is returned when entering Chat without a loaded model.
var ErrNoModel = inference.ErrNoModel

// next and prev are the only edges.
var (
	next = map[View]View{Landing: ModelSelect, ModelSelect: Chat}
	prev = map[View]View{ModelSelect: Landing, Chat: ModelSelect}
)

// Shell tracks the current view.
type Shell struct {
	mu       sync.Mutex
	current  View
	hasModel func() bool
}

// NewShell starts at Landing. hasModel gates entry to Chat; nil means no
// model is ever loaded.
func NewShell(hasModel func() bool) *Shell {
	if hasModel == nil {
		hasModel = func() bool { return false }
	}
	return &Shell{current: Landing, hasModel: hasModel}
}

// Current returns the current view.
func (s *Shell) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Forward moves to the next view.
func (s *Shell) Forward() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := next[s.current]
	if !ok {
		return s.current, fmt.Errorf("%w: no view after %s", ErrInvalidTransition, s.current)
	}
	return s.move(to)
}

// Back moves to the previous view.
func (s *Shell) Back() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := prev[s.current]
	if !ok {
		return s.current, fmt.Errorf("%w: no view before %s", ErrInvalidTransition, s.current)
	}
	return s.move(to)
}

// GoTo moves to target if it is adjacent to the current view. Going to
// the current view is a no-op.
func (s *Shell) GoTo(target View) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == s.current {
		return s.current, nil
	}
	if to, ok := next[s.current]; ok && to == target {
		return s.move(target)
	}
	if to, ok := prev[s.current]; ok && to == target {
		return s.move(target)
	}
	return s.current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.current, target)
}

// move performs a validated edge. Caller holds mu.
func (s *Shell) move(to View) (View, error) {
	if to == Chat && !s.hasModel() {
		return s.current, ErrNoModel
	}
	s.current = to
	return to, nil
}
