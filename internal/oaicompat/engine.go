// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package oaicompat is an inference.Engine for local servers that speak the
// OpenAI chat completions API, such as LM Studio or llama.cpp's server.
package oaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/quietchat/internal/inference"
)

// EngineName identifies this engine in logs.
const EngineName = "openai-compatible"

// ErrModelNotServed means the server does not list the requested model.
var ErrModelNotServed = errors.New("model not served")

// Config configures an Engine.
type Config struct {
	// BaseURL includes the API prefix, e.g. http://127.0.0.1:1234/v1
	BaseURL string
	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string
	// HTTPClient supplies the transport, normally the guard's gated client.
	HTTPClient *http.Client
}

// Engine streams chat completions from an OpenAI-compatible server.
type Engine struct {
	client *openai.Client
	logger *slog.Logger
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	return &Engine{client: openai.NewClientWithConfig(clientConfig), logger: logger}
}

// Name implements inference.Engine.
func (e *Engine) Name() string { return EngineName }

// Models lists the model IDs the server offers.
func (e *Engine) Models(ctx context.Context) ([]string, error) {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Load checks that the server offers model. These servers load models
// themselves, so there is nothing to fetch.
func (e *Engine) Load(ctx context.Context, model string, progress func(inference.Progress)) error {
	if progress != nil {
		progress(inference.Progress{Percent: 10, Status: "asking server"})
	}
	ids, err := e.Models(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if strings.EqualFold(id, model) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelNotServed, model)
}

// Unload is a no-op: the API has no unload call.
func (e *Engine) Unload(ctx context.Context, model string) error {
	e.logger.Debug("MODEL_UNLOAD_SKIPPED", "model", model, "engine", EngineName)
	return nil
}

// Stream implements inference.Engine.
func (e *Engine) Stream(ctx context.Context, model string, history []inference.Turn, onDelta func(string)) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		N:        1,
		Stream:   true,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			onDelta(delta)
		}
	}
}
