// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// IDLE TIMER
// =============================================================================

// Config holds idle timer settings.
type Config struct {
	// Timeout is the idle period after which the session expires (default: 10 minutes)
	Timeout time.Duration

	// WarningBefore is how long before expiry to warn (default: 1 minute)
	WarningBefore time.Duration

	// TickInterval is how often HandleTick re-arms (default: 1 second)
	TickInterval time.Duration
}

// DefaultConfig returns the default idle configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Minute,
		WarningBefore: time.Minute,
		TickInterval:  time.Second,
	}
}

// IdleTimer tracks time since the last user activity. Expiry fires once
// per idle period; RecordActivity re-arms it.
type IdleTimer struct {
	mu  sync.Mutex
	now func() time.Time

	lastActivity time.Time
	timeout      time.Duration
	warnBefore   time.Duration
	tick         time.Duration
	warningShown bool
	expiredFired bool

	onExpire  func()
	onWarning func(remaining time.Duration)
}

// NewIdleTimer creates a timer. now may be nil for time.Now.
func NewIdleTimer(cfg Config, now func() time.Time) *IdleTimer {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.WarningBefore < 0 || cfg.WarningBefore >= cfg.Timeout {
		cfg.WarningBefore = 0
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if now == nil {
		now = time.Now
	}
	return &IdleTimer{
		now:          now,
		lastActivity: now(),
		timeout:      cfg.Timeout,
		warnBefore:   cfg.WarningBefore,
		tick:         cfg.TickInterval,
	}
}

// SetExpireCallback sets the function called when the timer expires.
func (t *IdleTimer) SetExpireCallback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// SetWarningCallback sets the function called shortly before expiry.
func (t *IdleTimer) SetWarningCallback(fn func(remaining time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWarning = fn
}

// RecordActivity resets the idle clock.
func (t *IdleTimer) RecordActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActivity = t.now()
	t.warningShown = false
	t.expiredFired = false
}

// Idle returns the time since the last activity.
func (t *IdleTimer) Idle() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.lastActivity)
}

// Remaining returns the time until expiry, never negative.
func (t *IdleTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(0, t.timeout-t.now().Sub(t.lastActivity))
}

// Expired reports whether the idle period has elapsed.
func (t *IdleTimer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.lastActivity) >= t.timeout
}

// Check evaluates the timer, running callbacks outside the lock. It
// returns which events fired.
func (t *IdleTimer) Check() (warned, expired bool) {
	t.mu.Lock()
	idle := t.now().Sub(t.lastActivity)
	remaining := t.timeout - idle

	if idle >= t.timeout {
		if !t.expiredFired {
			t.expiredFired = true
			expired = true
		}
	} else if t.warnBefore > 0 && !t.warningShown && remaining <= t.warnBefore {
		t.warningShown = true
		warned = true
	}
	onExpire, onWarning := t.onExpire, t.onWarning
	t.mu.Unlock()

	if warned && onWarning != nil {
		onWarning(remaining)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return warned, expired
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg is sent periodically to check the timer.
type TickMsg struct {
	Time time.Time
}

// TimeoutWarningMsg indicates the session is about to expire.
type TimeoutWarningMsg struct {
	Remaining time.Duration
}

// TimeoutMsg indicates the session expired.
type TimeoutMsg struct{}

// TickCmd returns a command that ticks once after the timer's interval.
func (t *IdleTimer) TickCmd() tea.Cmd {
	return tea.Tick(t.tick, func(now time.Time) tea.Msg {
		return TickMsg{Time: now}
	})
}

// HandleTick checks the timer and re-arms the tick.
func (t *IdleTimer) HandleTick() tea.Cmd {
	cmds := []tea.Cmd{t.TickCmd()}

	warned, expired := t.Check()
	if warned {
		remaining := t.Remaining()
		cmds = append(cmds, func() tea.Msg { return TimeoutWarningMsg{Remaining: remaining} })
	}
	if expired {
		cmds = append(cmds, func() tea.Msg { return TimeoutMsg{} })
	}
	return tea.Batch(cmds...)
}
