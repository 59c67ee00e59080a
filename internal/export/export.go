// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// FORMATS
// =============================================================================

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or file extension. Empty means Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want md, html or json)", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Meta describes the exported conversation.
type Meta struct {
	Title    string
	Model    string
	Exported time.Time
	DarkMode bool

	// Watch sanitises HTML exports. Nil uses a watch private to the call.
	Watch *guard.MutationWatch
}

func (m Meta) title() string {
	if strings.TrimSpace(m.Title) == "" {
		return "Conversation"
	}
	return m.Title
}

func (m Meta) exported() time.Time {
	if m.Exported.IsZero() {
		return time.Now()
	}
	return m.Exported
}

// =============================================================================
// WRITING
// =============================================================================

// Render produces the bytes for f.
func Render(f Format, messages []*chat.Message, meta Meta) ([]byte, error) {
	if len(messages) == 0 {
		return nil, ErrEmpty
	}
	switch f {
	case FormatMarkdown:
		return Markdown(messages, meta), nil
	case FormatHTML:
		return HTML(messages, meta)
	case FormatJSON:
		return JSON(messages, meta)
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// Write renders messages as f and saves them under dir. Returns the path.
func Write(dir string, f Format, messages []*chat.Message, meta Meta) (string, error) {
	data, err := Render(f, messages, meta)
	if err != nil {
		return "", err
	}
	return ToFile(dir, meta.title(), f.Extension(), data)
}

// ToFile writes data to dir under a name built from title and the current
// time. The file is readable by the owner only.
func ToFile(dir, title, ext string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("quietchat_%s_%s%s",
		sanitizeFilename(title),
		time.Now().Format("20060102_150405"),
		ext,
	)
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames on
// Windows or Unix.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	result := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	out := strings.Trim(string(result), ".")
	if out == "" {
		return "conversation"
	}
	return out
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
