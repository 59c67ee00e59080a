// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/inference"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen2.5-7b-instruct","object":"model"}]}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			chunk := map[string]any{
				"id":      "c1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   req.Model,
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": d}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	return httptest.NewServer(mux)
}

func gatedEngine(srvURL string) (*Engine, *guard.AuditLog) {
	audit := guard.NewAuditLog(8)
	gate := guard.NewGate(guard.GateConfig{Origin: srvURL}, audit, http.DefaultTransport, quiet())
	return NewEngine(Config{BaseURL: srvURL + "/v1/", HTTPClient: gate.Client()}, quiet()), audit
}

func TestEngine_Load(t *testing.T) {
	srv := fakeServer(t, nil)
	defer srv.Close()
	eng, audit := gatedEngine(srv.URL)

	require.NoError(t, eng.Load(context.Background(), "qwen2.5-7b-instruct", nil))

	err := eng.Load(context.Background(), "gemma2:27b", nil)
	assert.ErrorIs(t, err, ErrModelNotServed)
	assert.Equal(t, inference.KindGeneric, inference.KindOf(err))
	assert.Zero(t, audit.Blocked())
}

func TestEngine_Stream(t *testing.T) {
	srv := fakeServer(t, []string{"Local", " only", ""})
	defer srv.Close()
	eng, _ := gatedEngine(srv.URL)

	var got []string
	err := eng.Stream(context.Background(), "qwen2.5-7b-instruct", []inference.Turn{
		{Role: inference.RoleUser, Content: "hi"},
	}, func(d string) { got = append(got, d) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Local", " only"}, got)
}

func TestEngine_BlockedRemote(t *testing.T) {
	audit := guard.NewAuditLog(8)
	gate := guard.NewGate(guard.GateConfig{Origin: "http://127.0.0.1:1234"}, audit, http.DefaultTransport, quiet())
	eng := NewEngine(Config{BaseURL: "https://api.openai.com/v1", APIKey: "sk-test", HTTPClient: gate.Client()}, quiet())

	err := eng.Stream(context.Background(), "gpt-4o", nil, func(string) {})
	require.Error(t, err)
	assert.Equal(t, inference.KindBlocked, inference.KindOf(err))
	assert.Equal(t, 1, audit.Blocked())
}

func TestEngine_UnloadIsNoop(t *testing.T) {
	eng := NewEngine(Config{BaseURL: "http://127.0.0.1:1"}, quiet())
	assert.NoError(t, eng.Unload(context.Background(), "anything"))
	assert.Equal(t, EngineName, eng.Name())
}
