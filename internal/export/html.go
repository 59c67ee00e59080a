// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/guard"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// HTML renders the conversation as a standalone page. Message markdown is
// converted by goldmark, sanitised by the UGC policy and inserted into a
// document watched by meta.Watch, so foreign active content is removed
// twice before serialisation.
func HTML(messages []*chat.Message, meta Meta) ([]byte, error) {
	watch := meta.Watch
	if watch == nil {
		watch = guard.NewMutationWatch("", slog.Default())
	}
	doc, err := guard.NewHTMLDocument(meta.title())
	if err != nil {
		return nil, err
	}
	stop := watch.Attach(doc)
	defer stop()

	theme := "light"
	if meta.DarkMode {
		theme = "dark"
	}
	doc.AddStyle(stylesheet)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<div class="container %s"><header><h1>%s</h1><p class="meta">`, theme, html.EscapeString(meta.title()))
	if meta.Model != "" {
		fmt.Fprintf(&sb, "Model: %s &middot; ", html.EscapeString(meta.Model))
	}
	fmt.Fprintf(&sb, "Exported %s &middot; %d messages</p></header><main>",
		meta.exported().Format(time.RFC3339), len(messages))

	for _, msg := range messages {
		body, err := renderContent(msg.Content())
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, `<article class="message %s"><div class="role">%s <span class="time">%s</span></div><div class="content">%s</div></article>`,
			html.EscapeString(string(msg.Role)),
			html.EscapeString(roleLabel(msg.Role)),
			formatShortTimestamp(msg.Timestamp),
			body,
		)
	}
	sb.WriteString(`</main><footer>Exported from quietchat. Generated locally.</footer></div>`)

	if err := doc.Insert(sb.String()); err != nil {
		return nil, err
	}
	page, err := doc.Render()
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return []byte(page), nil
}

// renderContent converts markdown to sanitised HTML.
func renderContent(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

const stylesheet = `
body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6; }
.container { max-width: 900px; margin: 0 auto; padding: 24px; min-height: 100vh; }
.dark { background: #1a1b26; color: #c0caf5; }
.light { background: #ffffff; color: #24292e; }
header { border-bottom: 2px solid #414868; margin-bottom: 16px; }
.meta, .time, footer { font-size: 0.85em; opacity: 0.7; }
.message { border-left: 4px solid; padding: 8px 16px; margin: 12px 0; }
.user { border-left-color: #7aa2f7; }
.assistant { border-left-color: #9ece6a; }
.system { border-left-color: #bb9af7; }
.role { font-weight: 600; }
pre { overflow-x: auto; padding: 12px; background: rgba(127,127,127,0.12); }
code { font-family: "SF Mono", "Fira Code", monospace; }
`
