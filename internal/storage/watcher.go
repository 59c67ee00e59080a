// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports databases created in a Databases directory.
type Watcher struct {
	dir      string
	debounce time.Duration
}

// NewWatcher watches the directory of dbs. Repeated events for the same
// database within debounce are reported once.
func NewWatcher(dbs *Databases, debounce time.Duration) *Watcher {
	return &Watcher{dir: dbs.Dir(), debounce: debounce}
}

// Watch blocks until ctx is done, calling onCreate with the name of each
// database file that appears.
func (w *Watcher) Watch(ctx context.Context, onCreate func(name string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	seen := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			name, ok := NameFromFile(event.Name)
			if !ok {
				continue
			}
			now := time.Now()
			if last, dup := seen[name]; dup && now.Sub(last) < w.debounce {
				continue
			}
			seen[name] = now
			onCreate(name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", w.dir, err)
		}
	}
}
