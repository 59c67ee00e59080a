// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOllama serves a scripted subset of the Ollama API.
type fakeOllama struct {
	mu        sync.Mutex
	pullLines []string
	chatLines []string
	chatCode  int
	requests  []string
	keepAlive []any
	lastChat  ChatRequest
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r.Method + " /")
		fmt.Fprint(w, "Ollama is running")
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.record("GET /api/tags")
		json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{{Name: "llama3.2:1b", Size: 1 << 30}}})
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		f.record("POST /api/pull")
		for _, line := range f.pullLines {
			fmt.Fprintln(w, line)
		}
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.keepAlive = append(f.keepAlive, req.KeepAlive)
		f.mu.Unlock()
		f.record("POST /api/generate")
		json.NewEncoder(w).Encode(GenerateResponse{Model: req.Model, Done: true})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.record("POST /api/chat")
		f.mu.Lock()
		json.NewDecoder(r.Body).Decode(&f.lastChat)
		f.mu.Unlock()
		if f.chatCode != 0 {
			w.WriteHeader(f.chatCode)
		}
		for _, line := range f.chatLines {
			fmt.Fprintln(w, line)
		}
	})
	return mux
}

func (f *fakeOllama) record(s string) {
	f.mu.Lock()
	f.requests = append(f.requests, s)
	f.mu.Unlock()
}

type memRecorder struct {
	records []storage.ModelRecord
}

func (m *memRecorder) Record(_ context.Context, r storage.ModelRecord) error {
	m.records = append(m.records, r)
	return nil
}

// newGatedClient points a client at srv through a gate whose origin is srv.
func newGatedClient(t *testing.T, baseURL string) (*Client, *guard.AuditLog) {
	t.Helper()
	audit := guard.NewAuditLog(16)
	gate := guard.NewGate(guard.GateConfig{Origin: baseURL}, audit, http.DefaultTransport, quiet())
	return NewClientWithConfig(&ClientConfig{BaseURL: baseURL, HTTPClient: gate.Client()}), audit
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:11434/"})
	cfg := c.config
	assert.Equal(t, "http://127.0.0.1:11434", cfg.BaseURL)
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
	assert.Equal(t, "30m", cfg.KeepAlive)
}

func TestClient_CheckRunningAndList(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, audit := newGatedClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.CheckRunning(ctx))
	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3.2:1b", models[0].Name)

	for _, e := range audit.Entries() {
		assert.True(t, e.Allowed)
		assert.Equal(t, guard.ReasonSameOrigin, e.Reason)
	}
}

func TestClient_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	err := c.CheckRunning(context.Background())
	require.Error(t, err)
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrTypeNotRunning, ce.Type)
	assert.Equal(t, inference.KindNetwork, inference.KindOf(err))

	var ie *inference.Error
	require.True(t, errors.As(inference.Classify("load", err), &ie))
	assert.Contains(t, ie.Remedy(), "ollama serve")
}

func TestClientError_Remedy(t *testing.T) {
	tests := []struct {
		typ  ErrorType
		want string
	}{
		{ErrTypeNotRunning, "ollama serve"},
		{ErrTypeModelNotFound, "quietchat models"},
		{ErrTypeTimeout, "in time"},
		{ErrTypeInvalidResponse, ""},
	}
	for _, tt := range tests {
		got := (&ClientError{Type: tt.typ}).Remedy()
		if tt.want == "" {
			assert.Empty(t, got)
		} else {
			assert.Contains(t, got, tt.want)
		}
	}
}

func TestClient_BlockedByGate(t *testing.T) {
	audit := guard.NewAuditLog(4)
	gate := guard.NewGate(guard.GateConfig{Origin: "http://127.0.0.1:11434"}, audit, http.DefaultTransport, quiet())
	c := NewClientWithConfig(&ClientConfig{BaseURL: "https://inference.example.com", HTTPClient: gate.Client()})

	_, err := c.ListModels(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, guard.ErrBlocked)
	assert.Equal(t, inference.KindBlocked, inference.KindOf(err))
	assert.Equal(t, 1, audit.Blocked())
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStreamReader_Process(t *testing.T) {
	body := strings.Join([]string{
		`{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`not json`,
		`{"model":"m","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"eval_count":2,"prompt_eval_count":5}`,
		`{"model":"m","message":{"role":"assistant","content":"ignored"},"done":false}`,
	}, "\n")

	r := NewStreamReader(strings.NewReader(body))
	var chunks []StreamChunk
	require.NoError(t, r.Process(context.Background(), func(c StreamChunk) { chunks = append(chunks, c) }))

	require.Len(t, chunks, 3)
	assert.True(t, chunks[2].Done)
	assert.Equal(t, 2, chunks[2].CompletionTokens)
	assert.Equal(t, 5, chunks[2].PromptTokens)
	assert.Equal(t, "Hello", chunks[0].Content+chunks[1].Content)
	assert.Equal(t, "m", chunks[2].Model)
}

func TestStreamReader_ErrorLine(t *testing.T) {
	body := `{"message":{"content":"a"}}` + "\n" + `{"error":"CUDA error: out of memory"}` + "\n"
	err := NewStreamReader(strings.NewReader(body)).Process(context.Background(), func(StreamChunk) {})
	require.Error(t, err)
	assert.Equal(t, inference.KindDeviceLost, inference.KindOf(err))
}

func TestStreamReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStreamReader(strings.NewReader(`{"message":{"content":"a"}}`)).Process(ctx, func(StreamChunk) {
		t.Fatal("callback after cancel")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamReader_ProcessPull(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantErr bool
		wantN   int
	}{
		{
			name:  "success",
			lines: []string{`{"status":"pulling manifest"}`, `{"status":"downloading","total":100,"completed":50}`, `{"status":"success"}`},
			wantN: 3,
		},
		{
			name:    "server error",
			lines:   []string{`{"status":"pulling manifest"}`, `{"error":"pull model manifest: file does not exist"}`},
			wantErr: true,
			wantN:   1,
		},
		{
			name:    "truncated",
			lines:   []string{`{"status":"pulling manifest"}`},
			wantErr: true,
			wantN:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n int
			err := NewStreamReader(strings.NewReader(strings.Join(tt.lines, "\n"))).
				ProcessPull(context.Background(), func(PullProgress) { n++ })
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestPullProgress_Percent(t *testing.T) {
	assert.Equal(t, -1, PullProgress{Status: "verifying"}.Percent())
	assert.Equal(t, 25, PullProgress{Total: 400, Completed: 100}.Percent())
	assert.Equal(t, 100, PullProgress{Total: 10, Completed: 20}.Percent())
}

// =============================================================================
// ENGINE TESTS
// =============================================================================

func TestEngine_LoadPullsRecordsAndWarms(t *testing.T) {
	fake := &fakeOllama{pullLines: []string{
		`{"status":"pulling manifest"}`,
		`{"status":"downloading","digest":"sha256:a","total":1000,"completed":500}`,
		`{"status":"downloading","digest":"sha256:a","total":1000,"completed":1000}`,
		`{"status":"verifying sha256 digest"}`,
		`{"status":"success"}`,
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	rec := &memRecorder{}
	eng := NewEngine(c, rec, quiet())

	var percents []int
	err := eng.Load(context.Background(), "llama3.2:1b", func(p inference.Progress) {
		percents = append(percents, p.Percent)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 45, 90, 90, 90, 95}, percents)
	require.Len(t, rec.records, 1)
	assert.Equal(t, "llama3.2:1b", rec.records[0].ID)
	assert.Equal(t, EngineName, rec.records[0].Engine)
	assert.Equal(t, int64(1000), rec.records[0].SizeBytes)
	assert.Equal(t, []string{"POST /api/pull", "POST /api/generate"}, fake.requests)
	assert.Equal(t, []any{"30m"}, fake.keepAlive)
}

func TestEngine_UnloadSendsZeroKeepAlive(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	require.NoError(t, NewEngine(c, nil, quiet()).Unload(context.Background(), "m"))
	require.Len(t, fake.keepAlive, 1)
	assert.EqualValues(t, 0, fake.keepAlive[0])
}

func TestEngine_Stream(t *testing.T) {
	fake := &fakeOllama{chatLines: []string{
		`{"message":{"role":"assistant","content":"Hi"},"done":false}`,
		`{"message":{"role":"assistant","content":" there"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	eng := NewEngine(c, nil, quiet())

	var deltas []string
	err := eng.Stream(context.Background(), "gemma2:2b", []inference.Turn{
		{Role: inference.RoleSystem, Content: "be brief"},
		{Role: inference.RoleUser, Content: "hello"},
	}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, deltas)
	assert.True(t, fake.lastChat.Stream)
	require.Len(t, fake.lastChat.Messages, 2)
	assert.Equal(t, "hello", fake.lastChat.Messages[1].Content)
	require.NotNil(t, fake.lastChat.Options)
	assert.Equal(t, 8192, fake.lastChat.Options.NumCtx)
}

func TestEngine_StreamContextWindowFollowsModel(t *testing.T) {
	fake := &fakeOllama{chatLines: []string{`{"message":{"content":"ok"},"done":true}`}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	eng := NewEngine(c, nil, quiet())
	hello := []inference.Turn{{Role: inference.RoleUser, Content: "hello"}}

	tests := []struct {
		model string
		want  int
	}{
		{"gemma2:2b", 8192},
		{"llama3.1:8b", 131072},
		{"qwen2.5:7b", 32768},
		{"my-finetune:latest", 8192},
	}
	for _, tt := range tests {
		require.NoError(t, eng.Stream(context.Background(), tt.model, hello, func(string) {}))
		require.NotNil(t, fake.lastChat.Options)
		assert.Equal(t, tt.model, fake.lastChat.Model)
		assert.Equal(t, tt.want, fake.lastChat.Options.NumCtx, tt.model)
	}
}

func TestEngine_Models(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	names, err := NewEngine(c, nil, quiet()).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:1b"}, names)
	assert.Equal(t, []string{"GET /", "GET /api/tags"}, fake.requests)
}

func TestEngine_ModelsServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewEngine(NewClientWithConfig(&ClientConfig{BaseURL: url}), nil, quiet()).Models(context.Background())
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrTypeNotRunning, ce.Type)
}

func TestEngine_StreamServerError(t *testing.T) {
	fake := &fakeOllama{
		chatCode:  http.StatusInternalServerError,
		chatLines: []string{`{"error":"model requires more system memory (12 GiB) than is available (8 GiB)"}`},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newGatedClient(t, srv.URL)
	err := NewEngine(c, nil, quiet()).Stream(context.Background(), "m", nil, func(string) {})
	require.Error(t, err)

	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, inference.KindDeviceLost, inference.KindOf(err))
}
