// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// =============================================================================
// DETECTION POLICY
// =============================================================================

// DetectionPolicy decides what happens when inspection is suspected.
type DetectionPolicy string

const (
	// PolicyIgnore only records the detection.
	PolicyIgnore DetectionPolicy = "ignore"

	// PolicyWipe wipes the in-memory conversation.
	PolicyWipe DetectionPolicy = "wipe"
)

// ParseDetectionPolicy parses a policy name. The empty string is PolicyIgnore.
func ParseDetectionPolicy(s string) (DetectionPolicy, error) {
	switch DetectionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyIgnore:
		return PolicyIgnore, nil
	case PolicyWipe:
		return PolicyWipe, nil
	}
	return "", fmt.Errorf("unknown detection policy %q (want ignore or wipe)", s)
}

// Inspection defaults.
const (
	DefaultInspectionInterval = 2 * time.Second
	DefaultDriftThreshold     = 100 * time.Millisecond
	DefaultSizeThreshold      = 40
)

// =============================================================================
// SIGNALS
// =============================================================================

// Signals reports the outer window size and the laid-out viewport size.
type Signals interface {
	WindowSize() (w, h int, ok bool)
	ViewportSize() (w, h int, ok bool)
}

// TerminalSignals reads the real terminal size from a file descriptor and
// takes the viewport size from whatever the UI last laid out.
type TerminalSignals struct {
	fd int

	mu      sync.Mutex
	viewW   int
	viewH   int
	hasView bool
}

// NewTerminalSignals reads window size from stdout.
func NewTerminalSignals() *TerminalSignals {
	return &TerminalSignals{fd: int(os.Stdout.Fd())}
}

// SetViewport records the size the UI rendered at.
func (s *TerminalSignals) SetViewport(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewW, s.viewH, s.hasView = w, h, true
}

// WindowSize implements Signals.
func (s *TerminalSignals) WindowSize() (int, int, bool) {
	if !term.IsTerminal(s.fd) {
		return 0, 0, false
	}
	w, h, err := term.GetSize(s.fd)
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

// ViewportSize implements Signals.
func (s *TerminalSignals) ViewportSize() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewW, s.viewH, s.hasView
}

// =============================================================================
// MONITOR
// =============================================================================

// Detection is the result of one heuristic check.
type Detection struct {
	TimingAnomaly bool
	SizeAnomaly   bool
	Drift         time.Duration
	WidthDelta    int
	HeightDelta   int
	Suppressed    bool
}

// Suspected reports whether any heuristic fired.
func (d Detection) Suspected() bool {
	return d.TimingAnomaly || d.SizeAnomaly
}

// InspectionConfig tunes the monitor.
type InspectionConfig struct {
	Policy         DetectionPolicy
	DriftThreshold time.Duration
	SizeThreshold  int
}

// InspectionMonitor watches for a paused process or a window that no
// longer matches the viewport. The signals are weak and only ever lead to
// a wipe when the policy asks for one.
type InspectionMonitor struct {
	cfg        InspectionConfig
	signals    Signals
	suppressed bool
	logger     *slog.Logger
	detections atomic.Int64

	mu   sync.Mutex
	wipe func()
}

// NewInspectionMonitor creates a monitor. Checks are suppressed entirely
// when originHost is loopback, private or onion.
func NewInspectionMonitor(cfg InspectionConfig, signals Signals, originHost string, wipe func(), logger *slog.Logger) *InspectionMonitor {
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = DefaultDriftThreshold
	}
	if cfg.SizeThreshold <= 0 {
		cfg.SizeThreshold = DefaultSizeThreshold
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyIgnore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InspectionMonitor{
		cfg:        cfg,
		signals:    signals,
		suppressed: originHost == "" || IsLocal(originHost),
		wipe:       wipe,
		logger:     logger,
	}
}

// SetWipe replaces the hook PolicyWipe calls.
func (m *InspectionMonitor) SetWipe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipe = fn
}

// Suppressed reports whether the monitor is disabled for this origin.
func (m *InspectionMonitor) Suppressed() bool {
	return m.suppressed
}

// Detections returns how many checks have fired.
func (m *InspectionMonitor) Detections() int64 {
	return m.detections.Load()
}

// Check evaluates one tick that was scheduled expected after the last one
// and actually arrived after actual.
func (m *InspectionMonitor) Check(expected, actual time.Duration) Detection {
	if m.suppressed {
		return Detection{Suppressed: true}
	}

	var d Detection
	d.Drift = actual - expected
	d.TimingAnomaly = d.Drift > m.cfg.DriftThreshold

	if m.signals != nil {
		ww, wh, okW := m.signals.WindowSize()
		vw, vh, okV := m.signals.ViewportSize()
		if okW && okV {
			d.WidthDelta = abs(ww - vw)
			d.HeightDelta = abs(wh - vh)
			d.SizeAnomaly = d.WidthDelta > m.cfg.SizeThreshold || d.HeightDelta > m.cfg.SizeThreshold
		}
	}

	if d.Suspected() {
		m.detections.Add(1)
		m.logger.Debug("INSPECTION_SUSPECTED",
			"timing", d.TimingAnomaly, "drift", d.Drift,
			"size", d.SizeAnomaly, "width_delta", d.WidthDelta, "height_delta", d.HeightDelta)
		m.mu.Lock()
		wipe := m.wipe
		m.mu.Unlock()
		if m.cfg.Policy == PolicyWipe && wipe != nil {
			_ = safely(func() error { wipe(); return nil })
		}
	}
	return d
}

// Run checks every interval until ctx is done.
func (m *InspectionMonitor) Run(ctx context.Context, interval time.Duration) {
	if m.suppressed {
		return
	}
	if interval <= 0 {
		interval = DefaultInspectionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Check(interval, now.Sub(last))
			last = now
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
