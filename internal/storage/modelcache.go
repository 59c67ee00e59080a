// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ModelCacheName is the database the guard keeps across scrubs.
const ModelCacheName = "model-cache"

// ModelRecord describes a model that has been fetched to this machine.
type ModelRecord struct {
	ID        string
	Engine    string
	SizeBytes int64
	FetchedAt time.Time
}

// ModelCache records downloaded models. It never holds chat content.
type ModelCache struct {
	db *sql.DB
}

// OpenModelCache opens the model-cache database in dbs.
func OpenModelCache(ctx context.Context, dbs *Databases) (*ModelCache, error) {
	db, err := dbs.Open(ctx, ModelCacheName)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS models (
		id         TEXT PRIMARY KEY,
		engine     TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &ModelCache{db: db}, nil
}

// Record inserts or refreshes a model record.
func (c *ModelCache) Record(ctx context.Context, r ModelRecord) error {
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `INSERT INTO models (id, engine, size_bytes, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET engine = excluded.engine,
			size_bytes = excluded.size_bytes, fetched_at = excluded.fetched_at`,
		r.ID, r.Engine, r.SizeBytes, r.FetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("record model %q: %w", r.ID, err)
	}
	return nil
}

// Has reports whether id has been recorded.
func (c *ModelCache) Has(ctx context.Context, id string) (bool, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every record, most recent first.
func (c *ModelCache) List(ctx context.Context) ([]ModelRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, engine, size_bytes, fetched_at FROM models ORDER BY fetched_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []ModelRecord
	for rows.Next() {
		var r ModelRecord
		var fetched int64
		if err := rows.Scan(&r.ID, &r.Engine, &r.SizeBytes, &fetched); err != nil {
			return nil, err
		}
		r.FetchedAt = time.Unix(fetched, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
