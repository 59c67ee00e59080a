// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// =============================================================================
// KEY-VALUE STORE
// =============================================================================

// KeyValue is a durable string map backed by one SQLite file. It holds UI
// preferences only; the guard clears it wholesale.
type KeyValue struct {
	db   *sql.DB
	path string
}

// OpenKeyValue opens or creates the store at path.
func OpenKeyValue(path string) (*KeyValue, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &KeyValue{db: db, path: path}, nil
}

// Path returns the backing file.
func (s *KeyValue) Path() string {
	return s.path
}

// Get returns the value for key and whether it exists.
func (s *KeyValue) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *KeyValue) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KeyValue) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Len returns the number of keys.
func (s *KeyValue) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Clear removes every key.
func (s *KeyValue) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *KeyValue) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Session is an in-memory string map scoped to the process.
type Session struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewSession creates an empty session store.
func NewSession() *Session {
	return &Session{data: make(map[string]string)}
}

// Get returns the value for key and whether it exists.
func (s *Session) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Len returns the number of keys.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear removes every key.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
	return nil
}
