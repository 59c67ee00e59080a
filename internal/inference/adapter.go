// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/quietchat/internal/catalog"
)

// Adapter drives one Engine. At most one model is loaded and at most one
// generation runs at any time.
type Adapter struct {
	engine Engine
	logger *slog.Logger

	// loadMu serialises Load and Unload
	loadMu sync.Mutex

	mu     sync.RWMutex
	loaded *catalog.ModelDescriptor

	generating atomic.Bool
}

// NewAdapter creates an adapter over engine.
func NewAdapter(engine Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, logger: logger}
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine {
	return a.engine
}

// Loaded returns the loaded model, or nil.
func (a *Adapter) Loaded() *catalog.ModelDescriptor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.loaded == nil {
		return nil
	}
	m := *a.loaded
	return &m
}

// Generating reports whether a generation is in flight.
func (a *Adapter) Generating() bool {
	return a.generating.Load()
}

// Load makes m the loaded model. A different loaded model is always
// unloaded first; loading the model that is already loaded is a no-op.
func (a *Adapter) Load(ctx context.Context, m catalog.ModelDescriptor, progress func(Progress)) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	report := func(p Progress) {
		if progress == nil {
			return
		}
		p.Percent = max(0, min(100, p.Percent))
		progress(p)
	}

	if current := a.Loaded(); current != nil {
		if current.ID == m.ID {
			report(Progress{Percent: 100, Status: "ready"})
			return nil
		}
		if a.Generating() {
			return ErrBusy
		}
		if err := a.unload(ctx, current.ID); err != nil {
			a.logger.Warn("MODEL_UNLOAD_FAILED", "model", current.ID, "error", err)
		}
	}

	report(Progress{Percent: 0, Status: "starting"})
	if err := a.engine.Load(ctx, m.ID, report); err != nil {
		a.logger.Warn("MODEL_LOAD_FAILED", "model", m.ID, "engine", a.engine.Name(), "error", err)
		return Classify("load", err)
	}

	a.mu.Lock()
	a.loaded = &m
	a.mu.Unlock()
	report(Progress{Percent: 100, Status: "ready"})
	a.logger.Info("MODEL_LOADED", "model", m.ID, "engine", a.engine.Name())
	return nil
}

// Unload releases the loaded model, if any.
func (a *Adapter) Unload(ctx context.Context) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	current := a.Loaded()
	if current == nil {
		return nil
	}
	if a.Generating() {
		return ErrBusy
	}
	return a.unload(ctx, current.ID)
}

// unload clears the loaded model even when the engine call fails, so a
// lost device never pins a stale model.
func (a *Adapter) unload(ctx context.Context, id string) error {
	err := a.engine.Unload(ctx, id)
	a.mu.Lock()
	a.loaded = nil
	a.mu.Unlock()
	if err != nil {
		return Classify("unload", err)
	}
	a.logger.Info("MODEL_UNLOADED", "model", id)
	return nil
}

// Generate streams a reply to history from the loaded model. ctx is the
// abort signal: it is checked between deltas, and once it is done no
// further deltas reach onToken. The returned text is the reply so far,
// also on cancellation and failure.
func (a *Adapter) Generate(ctx context.Context, history []Turn, onToken func(string)) (string, error) {
	m := a.Loaded()
	if m == nil {
		return "", ErrNoModel
	}
	if !a.generating.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.generating.Store(false)

	var reply strings.Builder
	err := a.engine.Stream(ctx, m.ID, history, func(delta string) {
		if ctx.Err() != nil || delta == "" {
			return
		}
		reply.WriteString(delta)
		if onToken != nil {
			onToken(delta)
		}
	})

	if ctx.Err() != nil {
		return reply.String(), &Error{Kind: KindCancelled, Op: "generate", Err: ErrCancelled}
	}
	if err != nil {
		return reply.String(), Classify("generate", err)
	}
	return reply.String(), nil
}
