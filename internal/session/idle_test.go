// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTimer(timeout, warn time.Duration) (*IdleTimer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewIdleTimer(Config{Timeout: timeout, WarningBefore: warn}, clock.now), clock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout)
	}
	if cfg.WarningBefore != time.Minute {
		t.Errorf("WarningBefore = %v, want 1m", cfg.WarningBefore)
	}
}

func TestIdleTimer_ExpiresOncePerIdlePeriod(t *testing.T) {
	timer, clock := newTimer(5*time.Minute, time.Minute)
	expired := 0
	timer.SetExpireCallback(func() { expired++ })

	clock.advance(4 * time.Minute)
	if _, exp := timer.Check(); exp {
		t.Fatal("expired early")
	}

	clock.advance(time.Minute)
	if !timer.Expired() {
		t.Fatal("Expired() = false at timeout")
	}
	timer.Check()
	timer.Check()
	if expired != 1 {
		t.Errorf("expire callback ran %d times, want 1", expired)
	}

	timer.RecordActivity()
	if timer.Expired() {
		t.Error("activity did not reset the timer")
	}
	clock.advance(6 * time.Minute)
	timer.Check()
	if expired != 2 {
		t.Errorf("expire callback ran %d times after re-arm, want 2", expired)
	}
}

func TestIdleTimer_Warning(t *testing.T) {
	timer, clock := newTimer(5*time.Minute, time.Minute)
	var got time.Duration
	warnings := 0
	timer.SetWarningCallback(func(r time.Duration) {
		warnings++
		got = r
	})

	clock.advance(4*time.Minute + 30*time.Second)
	warned, _ := timer.Check()
	if !warned || warnings != 1 {
		t.Fatalf("warned = %v, warnings = %d", warned, warnings)
	}
	if got != 30*time.Second {
		t.Errorf("remaining = %v, want 30s", got)
	}

	timer.Check()
	if warnings != 1 {
		t.Errorf("warning repeated: %d", warnings)
	}
}

func TestIdleTimer_RemainingNeverNegative(t *testing.T) {
	timer, clock := newTimer(time.Minute, 0)
	clock.advance(time.Hour)
	if r := timer.Remaining(); r != 0 {
		t.Errorf("Remaining = %v, want 0", r)
	}
	if idle := timer.Idle(); idle != time.Hour {
		t.Errorf("Idle = %v, want 1h", idle)
	}
}

func TestIdleTimer_HandleTick(t *testing.T) {
	timer, _ := newTimer(time.Minute, 0)
	if cmd := timer.HandleTick(); cmd == nil {
		t.Error("HandleTick returned nil command")
	}
}

func TestNewIdleTimer_InvalidWarning(t *testing.T) {
	timer, clock := newTimer(time.Minute, 2*time.Minute)
	clock.advance(30 * time.Second)
	if warned, _ := timer.Check(); warned {
		t.Error("warning longer than timeout should be disabled")
	}
}
