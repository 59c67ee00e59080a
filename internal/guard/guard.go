// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds every guard setting.
type Config struct {
	Origin           string
	AllowedHosts     []string
	AllowPrivate     bool
	AllowOnion       bool
	AuditCapacity    int
	AllowedDatabases []string
	ScrubInterval    time.Duration

	InspectionInterval time.Duration
	Inspection         InspectionConfig
}

// DefaultConfig returns the shipped guard settings for origin.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:             origin,
		AllowedHosts:       DefaultAllowedHosts,
		AllowPrivate:       true,
		AllowOnion:         true,
		AuditCapacity:      DefaultAuditCapacity,
		AllowedDatabases:   DefaultAllowedDatabases,
		ScrubInterval:      DefaultScrubInterval,
		InspectionInterval: DefaultInspectionInterval,
		Inspection: InspectionConfig{
			Policy:         PolicyIgnore,
			DriftThreshold: DefaultDriftThreshold,
			SizeThreshold:  DefaultSizeThreshold,
		},
	}
}

// StorageWatcher reports databases created while the guard runs.
type StorageWatcher interface {
	Watch(ctx context.Context, onCreate func(name string)) error
}

// Surfaces are the environment APIs the guard intercepts. Nil surfaces are
// skipped.
type Surfaces struct {
	KeyValue  KeyValueStore
	Session   SessionStore
	Databases DatabaseStore
	Clipboard ClipboardWriter
	Signals   Signals
	Watcher   StorageWatcher

	// Transport receives allowed requests. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Option customises a Guard.
type Option func(*Guard)

// WithLogger sets the logger for every interceptor.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithWipe sets the hook called when inspection is suspected under PolicyWipe.
func WithWipe(fn func()) Option {
	return func(g *Guard) {
		g.wipe = fn
	}
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// =============================================================================
// GUARD
// =============================================================================

// Guard is the policy context shared by every interceptor.
type Guard struct {
	cfg      Config
	surfaces Surfaces
	logger   *slog.Logger
	now      func() time.Time
	wipe     func()

	audit     *AuditLog
	gate      *Gate
	scrubber  *Scrubber
	clipboard *ClipboardPolicy
	watch     *MutationWatch
	inspector *InspectionMonitor

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *conc.WaitGroup
	closed bool
}

// New builds a guard from cfg and the given surfaces.
func New(cfg Config, surfaces Surfaces, opts ...Option) *Guard {
	g := &Guard{
		cfg:      cfg,
		surfaces: surfaces,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.audit = NewAuditLog(cfg.AuditCapacity)
	g.gate = NewGate(GateConfig{
		Origin:       cfg.Origin,
		AllowedHosts: cfg.AllowedHosts,
		AllowPrivate: cfg.AllowPrivate,
		AllowOnion:   cfg.AllowOnion,
	}, g.audit, surfaces.Transport, g.logger)
	g.gate.now = g.now
	g.scrubber = NewScrubber(surfaces.KeyValue, surfaces.Session, surfaces.Databases, cfg.AllowedDatabases, g.logger)
	g.scrubber.now = g.now
	g.clipboard = NewClipboardPolicy(surfaces.Clipboard, g.logger)
	g.watch = NewMutationWatch(g.gate.OriginHost(), g.logger)
	g.inspector = NewInspectionMonitor(cfg.Inspection, surfaces.Signals, g.gate.OriginHost(), g.wipe, g.logger)
	return g
}

// Gate returns the network gate.
func (g *Guard) Gate() *Gate { return g.gate }

// Audit returns the network audit log.
func (g *Guard) Audit() *AuditLog { return g.audit }

// Scrubber returns the storage scrubber.
func (g *Guard) Scrubber() *Scrubber { return g.scrubber }

// Clipboard returns the clipboard policy.
func (g *Guard) Clipboard() *ClipboardPolicy { return g.clipboard }

// Watch returns the markup mutation watch.
func (g *Guard) Watch() *MutationWatch { return g.watch }

// Inspector returns the inspection monitor.
func (g *Guard) Inspector() *InspectionMonitor { return g.inspector }

// HTTPClient returns a client routed through the gate.
func (g *Guard) HTTPClient() *http.Client { return g.gate.Client() }

// SetWipe sets the hook used by PolicyWipe.
func (g *Guard) SetWipe(fn func()) {
	g.inspector.SetWipe(fn)
}

// Install routes http.DefaultTransport through the gate.
func (g *Guard) Install() {
	g.gate.Install()
	g.logger.Debug("GATE_INSTALLED", "origin", g.cfg.Origin)
}

// Start launches the periodic scrub, the inspection monitor and the
// storage watcher. Calling Start twice is a no-op.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil || g.closed {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.wg = conc.NewWaitGroup()

	g.wg.Go(func() {
		g.scrubber.Run(ctx, g.cfg.ScrubInterval)
	})
	g.wg.Go(func() {
		g.inspector.Run(ctx, g.cfg.InspectionInterval)
	})
	if w := g.surfaces.Watcher; w != nil {
		g.wg.Go(func() {
			err := w.Watch(ctx, func(name string) {
				if g.scrubber.DatabaseAllowed(name) {
					return
				}
				g.logger.Debug("STORAGE_CREATED", "database", name)
				g.scrubber.Scrub(ctx)
			})
			if err != nil && ctx.Err() == nil {
				g.logger.Debug("STORAGE_WATCH_FAILED", "error", err)
			}
		})
	}
}

// Close stops background loops, scrubs once more and restores the default
// transport. It is the process-exit counterpart of Start.
func (g *Guard) Close() ScrubReport {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		report, _ := g.scrubber.Last()
		return report
	}
	g.closed = true
	cancel, wg := g.cancel, g.wg
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		wg.Wait()
	}
	report := g.scrubber.Scrub(context.Background())
	g.gate.Uninstall()
	g.logger.Debug("GUARD_CLOSED", "audit_entries", g.audit.Len(), "blocked", g.audit.Blocked())
	return report
}
