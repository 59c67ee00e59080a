// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// KEY-VALUE TESTS
// =============================================================================

func TestKeyValue_SetGetClear(t *testing.T) {
	kv, err := OpenKeyValue(filepath.Join(t.TempDir(), "local-storage.db"))
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set("theme", "dark"))
	require.NoError(t, kv.Set("theme", "light"))
	require.NoError(t, kv.Set("lang", "en"))

	v, ok, err := kv.Get("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	require.NoError(t, kv.Delete("lang"))
	_, ok, err = kv.Get("lang")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Clear())
	n, err := kv.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_Clear(t *testing.T) {
	s := NewSession()
	s.Set("draft", "hello")
	v, ok := s.Get("draft")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Len())
}

// =============================================================================
// DATABASES TESTS
// =============================================================================

func TestFileNameRoundTrip(t *testing.T) {
	for _, name := range []string{"model-cache", "webllm/model", "a b", "chat:1"} {
		got, ok := NameFromFile(FileName(name))
		assert.True(t, ok, name)
		assert.Equal(t, name, got)
	}

	_, ok := NameFromFile("model-cache.db-journal")
	assert.False(t, ok)
	_, ok = NameFromFile(".db")
	assert.False(t, ok)
}

func TestDatabases_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	dbs, err := NewDatabases(filepath.Join(t.TempDir(), "databases"))
	require.NoError(t, err)
	defer dbs.Close()

	for _, name := range []string{"webllm/model", "history", "model-cache"} {
		db, err := dbs.Open(ctx, name)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS t (x INTEGER)`)
		require.NoError(t, err)
	}

	names, err := dbs.Databases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"history", "model-cache", "webllm/model"}, names)

	require.NoError(t, dbs.DeleteDatabase(ctx, "history"))
	require.NoError(t, dbs.DeleteDatabase(ctx, "never-existed"))

	names, err = dbs.Databases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"model-cache", "webllm/model"}, names)

	_, err = os.Stat(filepath.Join(dbs.Dir(), FileName("history")))
	assert.True(t, os.IsNotExist(err))
}

func TestDatabases_RejectsEmptyName(t *testing.T) {
	dbs, err := NewDatabases(t.TempDir())
	require.NoError(t, err)
	_, err = dbs.Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, dbs.DeleteDatabase(context.Background(), ""), ErrInvalidName)
}

func TestModelCache_RecordAndList(t *testing.T) {
	ctx := context.Background()
	dbs, err := NewDatabases(t.TempDir())
	require.NoError(t, err)
	defer dbs.Close()

	cache, err := OpenModelCache(ctx, dbs)
	require.NoError(t, err)

	older := time.Unix(1_700_000_000, 0)
	newer := older.Add(time.Hour)
	require.NoError(t, cache.Record(ctx, ModelRecord{ID: "llama3.2:1b", Engine: "ollama", SizeBytes: 10, FetchedAt: older}))
	require.NoError(t, cache.Record(ctx, ModelRecord{ID: "qwen2.5:0.5b", Engine: "ollama", FetchedAt: newer}))
	require.NoError(t, cache.Record(ctx, ModelRecord{ID: "llama3.2:1b", Engine: "ollama", SizeBytes: 20, FetchedAt: older}))

	records, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "qwen2.5:0.5b", records[0].ID)
	assert.Equal(t, int64(20), records[1].SizeBytes)

	ok, err := cache.Has(ctx, "llama3.2:1b")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := dbs.Databases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ModelCacheName}, names)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReportsCreatedDatabases(t *testing.T) {
	dbs, err := NewDatabases(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := make(chan string, 4)
	w := NewWatcher(dbs, time.Second)
	go w.Watch(ctx, func(name string) { created <- name })

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dbs.Dir(), "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dbs.Dir(), FileName("chat/history")), nil, 0600))

	select {
	case name := <-created:
		assert.Equal(t, "chat/history", name)
	case <-time.After(3 * time.Second):
		t.Fatal("no create event reported")
	}
}
