// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/quietchat/internal/chat"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// Markdown renders the conversation as a markdown document with YAML
// frontmatter. Message content is written as-is.
func Markdown(messages []*chat.Message, meta Meta) []byte {
	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(meta.title()))
	if meta.Model != "" {
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(meta.Model))
	}
	fmt.Fprintf(&sb, "messages: %d\n", len(messages))
	fmt.Fprintf(&sb, "exported: %s\n", meta.exported().Format(time.RFC3339))
	sb.WriteString("generator: quietchat\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(meta.title()))

	for i, msg := range messages {
		fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role), formatShortTimestamp(msg.Timestamp))
		sb.WriteString(strings.TrimSpace(msg.Content()))
		sb.WriteString("\n\n")
		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return []byte(sb.String())
}

// roleLabel title-cases the role name. Casers keep state, so each call
// gets its own.
func roleLabel(role chat.Role) string {
	if role == "" {
		return "Unknown"
	}
	return cases.Title(language.English).String(string(role))
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes a scalar when it contains YAML indicators.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
