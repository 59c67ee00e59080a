// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/detect"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/session"
	"github.com/jeranaias/quietchat/internal/view"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Load(ctx context.Context, model string, progress func(inference.Progress)) error {
	progress(inference.Progress{Percent: 50, Status: "pulling"})
	return nil
}

func (echoEngine) Unload(ctx context.Context, model string) error { return nil }

func (echoEngine) Stream(ctx context.Context, model string, history []inference.Turn, onDelta func(string)) error {
	onDelta("echo: ")
	onDelta(history[len(history)-1].Content)
	return nil
}

type fakeClipboard struct{ text string }

func (c *fakeClipboard) WriteAll(text string) error {
	c.text = text
	return nil
}

type harness struct {
	m       *Model
	state   *chat.State
	shell   *view.Shell
	clip    *fakeClipboard
	signals *guard.TerminalSignals
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := inference.NewAdapter(echoEngine{}, logger)
	state := chat.NewState(nil, nil)
	ctrl := chat.NewController(state, adapter, logger)
	shell := view.NewShell(func() bool { return adapter.Loaded() != nil })
	clip := &fakeClipboard{}
	signals := guard.NewTerminalSignals()

	m := New(Deps{
		Controller: ctrl,
		Shell:      shell,
		Clipboard:  guard.NewClipboardPolicy(clip, logger),
		Audit:      guard.NewAuditLog(10),
		Signals:    signals,
		Profile: func(context.Context) detect.HardwareProfile {
			return detect.HardwareProfile{MemoryGB: 16, Cores: 8, Backend: detect.BackendCPU, Recommended: catalog.CategorySmall}
		},
		ExportDir: t.TempDir(),
		Dark:      true,
		Logger:    logger,
	})
	t.Cleanup(m.Close)
	return &harness{m: m, state: state, shell: shell, clip: clip, signals: signals}
}

func keyMsg(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

// loadFirst walks to the model screen and loads the selected model.
func (h *harness) loadFirst(t *testing.T) {
	t.Helper()
	h.m.Update(keyMsg(tea.KeyEnter))
	require.Equal(t, view.ModelSelect, h.shell.Current())
	msg := h.m.loadCmd(h.m.models[h.m.cursor])()
	h.m.Update(msg)
	require.Equal(t, view.Chat, h.shell.Current())
}

// =============================================================================
// TESTS
// =============================================================================

func TestModel_ProfileSelectsRecommended(t *testing.T) {
	h := newHarness(t)
	h.m.Update(h.m.profileCmd()())

	require.NotNil(t, h.m.profile)
	assert.Equal(t, catalog.CategorySmall, h.m.models[h.m.cursor].Category)
	assert.Contains(t, h.m.View(), "16 GB RAM")
}

func TestModel_LoadEntersChat(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)

	require.NotNil(t, h.state.Model())
	assert.Equal(t, 100, h.state.Flags().LoadProgress)
	assert.Contains(t, h.m.status, "ready")
}

func TestModel_SendAndCopy(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)

	h.m.Update(h.m.sendCmd("hello")())
	require.Equal(t, 2, h.state.Len())
	assert.Equal(t, "echo: hello", h.state.Last().Content())

	h.m.Update(keyMsg(tea.KeyCtrlY))
	assert.Equal(t, "echo: hello", h.clip.text)
	assert.Equal(t, "Copied answer to clipboard.", h.m.status)
}

func TestModel_ClearWipesChat(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)
	h.m.Update(h.m.sendCmd("hello")())

	h.m.Update(keyMsg(tea.KeyCtrlL))
	assert.Zero(t, h.state.Len())
}

func TestModel_IdleTimeoutHonoursAutoDelete(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)
	h.m.Update(h.m.sendCmd("hello")())

	h.m.Update(session.TimeoutMsg{})
	assert.Equal(t, 2, h.state.Len(), "auto-delete off keeps the chat")

	h.state.SetAutoDelete(true)
	h.m.Update(session.TimeoutMsg{})
	assert.Zero(t, h.state.Len())
}

func TestModel_Export(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)

	_, cmd := h.m.Update(keyMsg(tea.KeyCtrlE))
	assert.Nil(t, cmd, "empty chat has nothing to export")

	h.m.Update(h.m.sendCmd("hello")())
	_, cmd = h.m.Update(keyMsg(tea.KeyCtrlE))
	require.NotNil(t, cmd)
	done := cmd().(exportDoneMsg)
	require.NoError(t, done.err)
	h.m.Update(done)

	data, err := os.ReadFile(done.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo: hello")
	assert.True(t, strings.HasPrefix(h.m.status, "Exported to "))
}

func TestModel_ExportHTMLUsesWatch(t *testing.T) {
	h := newHarness(t)
	watch := guard.NewMutationWatch("127.0.0.1:11434", h.m.deps.Logger)
	h.m.deps.Watch = watch
	h.m.deps.ExportFormat = export.FormatHTML
	h.loadFirst(t)

	h.m.Update(h.m.sendCmd("hello")())
	_, cmd := h.m.Update(keyMsg(tea.KeyCtrlE))
	require.NotNil(t, cmd)
	done := cmd().(exportDoneMsg)
	require.NoError(t, done.err)

	assert.Equal(t, ".html", filepath.Ext(done.path))
	assert.Equal(t, int64(1), watch.Stats().CheckedInserts)
}

func TestModel_ResizeFeedsSignals(t *testing.T) {
	h := newHarness(t)
	h.m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	w, hgt, ok := h.signals.ViewportSize()
	require.True(t, ok)
	assert.Equal(t, 120, w)
	assert.Equal(t, 40, hgt)
}

func TestModel_ThemeToggle(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.state.Preferences().DarkMode)
	h.m.Update(keyMsg(tea.KeyCtrlT))
	assert.False(t, h.state.Preferences().DarkMode)
	assert.False(t, h.m.theme.Dark)
}

func TestModel_EscNavigatesBack(t *testing.T) {
	h := newHarness(t)
	h.loadFirst(t)

	h.m.Update(keyMsg(tea.KeyEsc))
	assert.Equal(t, view.ModelSelect, h.shell.Current())
	h.m.Update(keyMsg(tea.KeyEsc))
	assert.Equal(t, view.Landing, h.shell.Current())
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "Load a model first.", describeError(inference.ErrNoModel))
	err := inference.Classify("generate", &guard.BlockedError{URL: "https://x.example"})
	assert.Equal(t, "The request was stopped by the network gate.", describeError(err))
}
