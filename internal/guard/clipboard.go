// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"log/slog"
	"sync/atomic"
)

// Action is a clipboard or selection gesture.
type Action int

const (
	ActionCopy Action = iota
	ActionCut
	ActionPaste
	ActionSelect
)

func (a Action) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionCut:
		return "cut"
	case ActionPaste:
		return "paste"
	case ActionSelect:
		return "select"
	default:
		return "unknown"
	}
}

// Region identifies where a gesture happens.
type Region int

const (
	RegionOther Region = iota
	RegionMessageContent
	RegionTextInput
)

func (r Region) String() string {
	switch r {
	case RegionMessageContent:
		return "message-content"
	case RegionTextInput:
		return "text-input"
	default:
		return "other"
	}
}

// ClipboardWriter puts text on the system clipboard.
type ClipboardWriter interface {
	WriteAll(text string) error
}

// ClipboardPolicy allows clipboard and selection gestures only inside
// message content and text inputs.
type ClipboardPolicy struct {
	writer  ClipboardWriter
	logger  *slog.Logger
	blocked atomic.Int64
}

// NewClipboardPolicy creates a policy. writer may be nil, in which case
// Copy always reports false.
func NewClipboardPolicy(writer ClipboardWriter, logger *slog.Logger) *ClipboardPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipboardPolicy{writer: writer, logger: logger}
}

// Allow reports whether action may happen in region.
func (p *ClipboardPolicy) Allow(action Action, region Region) bool {
	switch region {
	case RegionMessageContent, RegionTextInput:
		return true
	}
	p.blocked.Add(1)
	p.logger.Debug("CLIPBOARD_BLOCKED", "action", action.String(), "region", region.String())
	return false
}

// Copy writes text to the clipboard when copying from region is allowed.
// It reports whether the text reached the clipboard.
func (p *ClipboardPolicy) Copy(region Region, text string) bool {
	if !p.Allow(ActionCopy, region) || p.writer == nil {
		return false
	}
	if err := safely(func() error { return p.writer.WriteAll(text) }); err != nil {
		p.logger.Debug("CLIPBOARD_WRITE_FAILED", "error", err)
		return false
	}
	return true
}

// Blocked returns how many gestures have been refused.
func (p *ClipboardPolicy) Blocked() int64 {
	return p.blocked.Load()
}
