// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/guard"
)

var exportedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func conversation() []*chat.Message {
	return []*chat.Message{
		chat.NewMessage(chat.RoleUser, "How do I list files?"),
		chat.NewMessage(chat.RoleAssistant, "Use `ls`:\n\n```sh\nls -la\n```"),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{".md", FormatMarkdown, false},
		{"HTML", FormatHTML, false},
		{"htm", FormatHTML, false},
		{"json", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkdown(t *testing.T) {
	out := string(Markdown(conversation(), Meta{Title: "Shell: basics", Model: "llama3.2:1b", Exported: exportedAt}))

	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, `title: "Shell: basics"`)
	assert.Contains(t, out, "model: \"llama3.2:1b\"")
	assert.Contains(t, out, "messages: 2\n")
	assert.Contains(t, out, "exported: 2025-03-14T09:26:53Z")
	assert.Contains(t, out, "### User <sub>")
	assert.Contains(t, out, "### Assistant <sub>")
	assert.Contains(t, out, "```sh\nls -la\n```")
}

func TestMarkdown_DefaultTitle(t *testing.T) {
	out := string(Markdown(conversation(), Meta{}))
	assert.Contains(t, out, "title: Conversation\n")
	assert.Contains(t, out, "# Conversation\n")
	assert.NotContains(t, out, "model:")
}

func TestHTML_SanitisesContent(t *testing.T) {
	msgs := []*chat.Message{
		chat.NewMessage(chat.RoleUser, "hi"),
		chat.NewMessage(chat.RoleAssistant,
			"<script>alert(1)</script>\n\n[click](javascript:alert(2))\n\n<img src=x onerror=alert(3)>\n\n**bold**"),
	}
	out, err := HTML(msgs, Meta{Title: "<b>t</b>", Exported: exportedAt, DarkMode: true})
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<strong>bold</strong>")
	assert.Contains(t, page, `class="container dark"`)
	assert.Contains(t, page, "&lt;b&gt;t&lt;/b&gt;")
	assert.NotContains(t, page, "<script")
	assert.NotContains(t, page, "javascript:")
	assert.NotContains(t, page, "onerror")
	assert.Contains(t, page, "</style></head>")
}

func TestHTML_UsesCallerWatch(t *testing.T) {
	watch := guard.NewMutationWatch("127.0.0.1:11434", slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := HTML(conversation(), Meta{Title: "t", Exported: exportedAt, Watch: watch})
	require.NoError(t, err)
	assert.Equal(t, int64(1), watch.Stats().CheckedInserts)

	_, err = Render(FormatHTML, conversation(), Meta{Watch: watch})
	require.NoError(t, err)
	assert.Equal(t, int64(2), watch.Stats().CheckedInserts)
}

func TestJSON(t *testing.T) {
	msgs := conversation()
	out, err := JSON(msgs, Meta{Title: "t", Exported: exportedAt})
	require.NoError(t, err)

	var doc jsonDocument
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Messages, 2)
	assert.Equal(t, msgs[0].ID, doc.Messages[0].ID)
	assert.Equal(t, "assistant", doc.Messages[1].Role)
	assert.Equal(t, msgs[1].Content(), doc.Messages[1].Content)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, FormatMarkdown, conversation(), Meta{Title: "my/notes"})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "quietchat_my-notes_"))
	assert.Equal(t, ".md", filepath.Ext(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWrite_Empty(t *testing.T) {
	_, err := Write(t.TempDir(), FormatHTML, nil, Meta{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world", "hello_world"},
		{`a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"", "conversation"},
		{"..", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func TestExport_ConcurrentRenders(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := FormatMarkdown
			if i%2 == 1 {
				f = FormatHTML
			}
			out, err := Render(f, conversation(), Meta{Title: "t", Exported: exportedAt})
			if err != nil {
				errs <- err
				return
			}
			if !strings.Contains(string(out), "Assistant") || !strings.Contains(string(out), "User") {
				errs <- fmt.Errorf("render %d: role labels missing", i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
