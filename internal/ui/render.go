// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/quietchat/internal/chat"
)

// refreshConversation re-renders every message into the viewport and
// keeps it pinned to the bottom.
func (m *Model) refreshConversation() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m *Model) renderConversation() string {
	state := m.deps.Controller.State()
	msgs := state.Messages()
	if len(msgs) == 0 {
		return m.theme.Muted.Render("No messages yet. Type below and press Enter.")
	}

	width := max(20, m.viewport.Width-4)
	generating := state.Flags().Generating

	var sb strings.Builder
	for i, msg := range msgs {
		header := msg.Role.DisplayName() + "  " + m.theme.Muted.Render(msg.Timestamp.Format("15:04"))

		var body string
		switch {
		case msg.Role == chat.RoleAssistant && msg.Len() == 0 && generating && i == len(msgs)-1:
			body = m.spinner.View() + " thinking..."
		case msg.Role == chat.RoleAssistant:
			body = m.markdown(msg.Content(), width)
		default:
			body = lipgloss.NewStyle().Width(width).Render(msg.Content())
		}

		style := m.theme.User
		if msg.Role == chat.RoleAssistant {
			style = m.theme.Assistant
		}
		sb.WriteString(style.Render(header + "\n" + body))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// markdown renders content with glamour, falling back to wrapped plain
// text when the renderer is unavailable.
func (m *Model) markdown(content string, width int) string {
	if m.renderer == nil || m.rendererWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.MarkdownStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.deps.Logger.Debug("MARKDOWN_RENDERER_FAILED", "error", err)
			m.renderer = nil
		} else {
			m.renderer, m.rendererWidth = r, width
		}
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}
