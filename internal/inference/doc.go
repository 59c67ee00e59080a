// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference wraps a local inference engine behind a single-model
// adapter with streaming, cooperative cancellation and a small error
// taxonomy.
//
// # Key Types
//
//   - Engine: the backend contract (Ollama, OpenAI-compatible servers)
//   - Adapter: enforces one loaded model and one generation at a time
//   - Error: classified failure with a user-facing remedy
//
// # Usage
//
//	a := inference.NewAdapter(engine, logger)
//	err := a.Load(ctx, model, func(p inference.Progress) { ... })
//	text, err := a.Generate(ctx, history, func(delta string) { ... })
//	if inference.IsCancelled(err) {
//		// text holds the partial reply
//	}
package inference
