// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"
)

// =============================================================================
// STORAGE SURFACES
// =============================================================================

// KeyValueStore is durable key-value storage that is wiped wholesale.
type KeyValueStore interface {
	Clear() error
}

// SessionStore is per-session storage that is wiped wholesale.
type SessionStore interface {
	Clear() error
}

// DatabaseStore enumerates and deletes durable named databases.
type DatabaseStore interface {
	Databases(ctx context.Context) ([]string, error)
	DeleteDatabase(ctx context.Context, name string) error
}

// DefaultAllowedDatabases are glob patterns for model-cache databases the
// scrub keeps.
var DefaultAllowedDatabases = []string{
	"model-cache*",
	"model-config*",
	"webllm/*",
	"tvmjs*",
}

// DefaultScrubInterval is how often the periodic scrub runs.
const DefaultScrubInterval = 30 * time.Second

// =============================================================================
// SCRUBBER
// =============================================================================

// ScrubReport summarises one scrub pass.
type ScrubReport struct {
	KeyValueCleared bool
	SessionCleared  bool
	Deleted         []string
	Kept            []string
	Failures        int
	At              time.Time
}

// Scrubber clears storage that could hold chat content.
type Scrubber struct {
	kv      KeyValueStore
	session SessionStore
	dbs     DatabaseStore
	allowed []string
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	last   ScrubReport
	passes int
}

// NewScrubber creates a scrubber. Any store may be nil.
func NewScrubber(kv KeyValueStore, session SessionStore, dbs DatabaseStore, allowed []string, logger *slog.Logger) *Scrubber {
	if allowed == nil {
		allowed = DefaultAllowedDatabases
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scrubber{
		kv:      kv,
		session: session,
		dbs:     dbs,
		allowed: allowed,
		logger:  logger,
		now:     time.Now,
	}
}

// DatabaseAllowed reports whether a database name matches the keep list.
func (s *Scrubber) DatabaseAllowed(name string) bool {
	for _, pattern := range s.allowed {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Scrub clears key-value and session storage and deletes every database
// not on the keep list. Failures are counted, never returned.
func (s *Scrubber) Scrub(ctx context.Context) ScrubReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := ScrubReport{At: s.now()}

	if s.kv != nil {
		if err := safely(s.kv.Clear); err != nil {
			report.Failures++
			s.logger.Debug("SCRUB_KV_FAILED", "error", err)
		} else {
			report.KeyValueCleared = true
		}
	}

	if s.session != nil {
		if err := safely(s.session.Clear); err != nil {
			report.Failures++
			s.logger.Debug("SCRUB_SESSION_FAILED", "error", err)
		} else {
			report.SessionCleared = true
		}
	}

	if s.dbs != nil {
		var names []string
		err := safely(func() error {
			var err error
			names, err = s.dbs.Databases(ctx)
			return err
		})
		if err != nil {
			report.Failures++
			s.logger.Debug("SCRUB_LIST_FAILED", "error", err)
		}
		for _, name := range names {
			if s.DatabaseAllowed(name) {
				report.Kept = append(report.Kept, name)
				continue
			}
			if err := safely(func() error { return s.dbs.DeleteDatabase(ctx, name) }); err != nil {
				report.Failures++
				s.logger.Debug("SCRUB_DELETE_FAILED", "database", name, "error", err)
				continue
			}
			report.Deleted = append(report.Deleted, name)
		}
	}

	s.last = report
	s.passes++
	s.logger.Debug("SCRUB_COMPLETE", "deleted", len(report.Deleted), "kept", len(report.Kept), "failures", report.Failures)
	return report
}

// Run scrubs every interval until ctx is done.
func (s *Scrubber) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScrubInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scrub(ctx)
		}
	}
}

// Last returns the most recent report and how many passes have run.
func (s *Scrubber) Last() (ScrubReport, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.passes
}

// safely runs fn, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
