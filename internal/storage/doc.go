// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local storage surfaces quietchat writes to
// and the privacy guard scrubs.
//
// # Key Types
//
//   - KeyValue: durable key-value store (one SQLite file)
//   - Session: in-memory store that dies with the process
//   - Databases: a directory of named SQLite databases
//   - ModelCache: downloaded-model records kept in the "model-cache" database
//   - Watcher: reports databases created on disk
//
// # Usage
//
//	kv, err := storage.OpenKeyValue(filepath.Join(dataDir, "local-storage.db"))
//	dbs, err := storage.NewDatabases(filepath.Join(dataDir, "databases"))
//	cache, err := storage.OpenModelCache(ctx, dbs)
//
// Chat content is never written here. The guard deletes every database
// except model caches and clears the key-value store on a timer and at exit.
package storage
