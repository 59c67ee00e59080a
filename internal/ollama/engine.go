// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"log/slog"
	"time"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/storage"
)

// EngineName identifies this engine in logs and the model cache.
const EngineName = "ollama"

// ModelRecorder stores fetched-model metadata.
type ModelRecorder interface {
	Record(ctx context.Context, r storage.ModelRecord) error
}

// Engine adapts a Client to inference.Engine.
type Engine struct {
	client   *Client
	recorder ModelRecorder
	logger   *slog.Logger
}

// NewEngine creates an engine. recorder may be nil.
func NewEngine(client *Client, recorder ModelRecorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, recorder: recorder, logger: logger}
}

// Name implements inference.Engine.
func (e *Engine) Name() string { return EngineName }

// Load pulls model (pull progress maps to 0-90%) and warms it.
func (e *Engine) Load(ctx context.Context, model string, progress func(inference.Progress)) error {
	if progress == nil {
		progress = func(inference.Progress) {}
	}

	var size int64
	last := 0
	err := e.client.Pull(ctx, model, func(p PullProgress) {
		if p.Total > size {
			size = p.Total
		}
		// status-only lines keep the previous percentage
		if pct := p.Percent(); pct >= 0 {
			last = pct * 90 / 100
		}
		progress(inference.Progress{Percent: last, Status: p.Status})
	})
	if err != nil {
		return err
	}

	if e.recorder != nil {
		rec := storage.ModelRecord{ID: model, Engine: EngineName, SizeBytes: size, FetchedAt: time.Now()}
		if err := e.recorder.Record(ctx, rec); err != nil {
			e.logger.Warn("MODEL_CACHE_RECORD_FAILED", "model", model, "error", err)
		}
	}

	progress(inference.Progress{Percent: 95, Status: "loading into memory"})
	return e.client.Warm(ctx, model)
}

// Models lists the models already on the server. It fails with a
// not-running error when the server cannot be reached.
func (e *Engine) Models(ctx context.Context) ([]string, error) {
	if err := e.client.CheckRunning(ctx); err != nil {
		return nil, err
	}
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, m := range list {
		names = append(names, m.Name)
	}
	return names, nil
}

// Unload implements inference.Engine.
func (e *Engine) Unload(ctx context.Context, model string) error {
	return e.client.Unload(ctx, model)
}

// Stream implements inference.Engine.
func (e *Engine) Stream(ctx context.Context, model string, history []inference.Turn, onDelta func(string)) error {
	messages := make([]Message, 0, len(history))
	for _, t := range history {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}
	return e.client.ChatStream(ctx, model, messages, contextOptions(model), func(chunk StreamChunk) {
		if chunk.Content != "" {
			onDelta(chunk.Content)
		}
	})
}

// contextOptions sets num_ctx to the window of model so the server keeps
// as much history as the conversation tracks.
func contextOptions(model string) *Options {
	m, ok := catalog.Lookup(model)
	if !ok {
		m = catalog.Custom(model)
	}
	return &Options{NumCtx: m.ContextWindow}
}
