// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama talks to a local Ollama server and exposes it as an
// inference.Engine.
//
// All requests go through the caller's *http.Client, which in quietchat is
// the guard's gated client, so the only reachable host is the configured
// server itself.
//
// # Key Types
//
//   - Client: thin HTTP client for /api/tags, /api/pull, /api/generate and /api/chat
//   - StreamReader: NDJSON line reader shared by pull progress and chat streams
//   - Engine: inference.Engine over a Client, recording pulled models in the model cache
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:    "http://127.0.0.1:11434",
//	    HTTPClient: g.HTTPClient(),
//	})
//	engine := ollama.NewEngine(client, cache, logger)
//	adapter := inference.NewAdapter(engine, logger)
package ollama
