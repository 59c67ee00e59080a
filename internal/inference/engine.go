// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import "context"

// Roles used in Turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of the conversation history sent to the engine.
type Turn struct {
	Role    string
	Content string
}

// Progress reports model loading.
type Progress struct {
	Percent int
	Status  string
}

// Engine is an inference backend.
type Engine interface {
	// Name identifies the engine in logs and the model cache.
	Name() string

	// Load fetches and warms a model, reporting progress as it goes.
	Load(ctx context.Context, model string, progress func(Progress)) error

	// Unload releases a model's memory.
	Unload(ctx context.Context, model string) error

	// Stream generates a reply, calling onDelta for each text fragment in
	// order. It returns when the reply is complete or ctx is done.
	Stream(ctx context.Context, model string, history []Turn, onDelta func(string)) error
}
