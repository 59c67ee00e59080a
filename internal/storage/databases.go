// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// dbExt is the file extension of every named database.
const dbExt = ".db"

// sidecarSuffixes are SQLite's companion files.
var sidecarSuffixes = []string{"-journal", "-wal", "-shm"}

// ErrInvalidName is returned for empty database names.
var ErrInvalidName = errors.New("invalid database name")

// Databases manages a directory of named SQLite databases. Names may
// contain any character; they are path-escaped on disk.
type Databases struct {
	dir string

	mu   sync.Mutex
	open map[string]*sql.DB
}

// NewDatabases creates the directory if needed.
func NewDatabases(dir string) (*Databases, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create databases directory: %w", err)
	}
	return &Databases{dir: dir, open: make(map[string]*sql.DB)}, nil
}

// Dir returns the directory holding the databases.
func (d *Databases) Dir() string {
	return d.dir
}

// FileName returns the on-disk file name for a database name.
func FileName(name string) string {
	return url.PathEscape(name) + dbExt
}

// NameFromFile is the inverse of FileName. ok is false for files that are
// not databases.
func NameFromFile(file string) (name string, ok bool) {
	base := filepath.Base(file)
	if !strings.HasSuffix(base, dbExt) {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimSuffix(base, dbExt))
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

// Open returns a handle to the named database, creating it if needed.
// Handles are cached and closed by DeleteDatabase or Close.
func (d *Databases) Open(ctx context.Context, name string) (*sql.DB, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.open[name]; ok {
		return db, nil
	}
	db, err := openSQLite(filepath.Join(d.dir, FileName(name)))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %q: %w", name, err)
	}
	d.open[name] = db
	return db, nil
}

// Databases lists every database name, sorted.
func (d *Databases) Databases(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := NameFromFile(e.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, ctx.Err()
}

// DeleteDatabase closes any open handle and removes the database files.
// Deleting a missing database is not an error.
func (d *Databases) DeleteDatabase(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if db, ok := d.open[name]; ok {
		db.Close()
		delete(d.open, name)
	}
	d.mu.Unlock()

	path := filepath.Join(d.dir, FileName(name))
	var errs []error
	for _, p := range append([]string{path}, sidecars(path)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every open handle.
func (d *Databases) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for name, db := range d.open {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(d.open, name)
	}
	return errors.Join(errs...)
}

func sidecars(path string) []string {
	out := make([]string, 0, len(sidecarSuffixes))
	for _, s := range sidecarSuffixes {
		out = append(out, path+s)
	}
	return out
}
