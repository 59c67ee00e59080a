// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/quietchat/internal/util"
	"github.com/jeranaias/quietchat/internal/view"
)

// View renders the current screen.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var body string
	switch m.deps.Shell.Current() {
	case view.Landing:
		body = m.viewLanding()
	case view.ModelSelect:
		body = m.viewModelSelect()
	default:
		body = m.viewChat()
	}
	return body
}

// =============================================================================
// LANDING
// =============================================================================

func (m *Model) viewLanding() string {
	t := m.theme
	var sb strings.Builder
	sb.WriteString(t.Title.Render("quietchat") + "\n")
	sb.WriteString(t.Subtitle.Render("Private chat with a model running on this machine.") + "\n\n")

	if m.profile == nil {
		sb.WriteString(m.spinner.View() + " Detecting hardware...\n")
	} else {
		sb.WriteString("Hardware   " + m.profile.String() + "\n")
		sb.WriteString("Suggested  " + t.Badge.Render(m.profile.Recommended.String()+" models") + "\n")
	}

	sb.WriteString("\n")
	for _, line := range []string{
		"Conversations live in memory only and are wiped on exit.",
		"Outbound requests are limited to the inference server and model hosts.",
		"Copying is limited to messages and the input box.",
	} {
		sb.WriteString(t.Muted.Render("  * "+line) + "\n")
	}
	sb.WriteString("\n" + t.Subtitle.Render("Enter: choose a model   q: quit"))
	return m.frame(sb.String())
}

// =============================================================================
// MODEL SELECT
// =============================================================================

func (m *Model) viewModelSelect() string {
	t := m.theme
	state := m.deps.Controller.State()
	loaded := state.Model()

	var sb strings.Builder
	sb.WriteString(t.Title.Render("Choose a model") + "\n\n")

	nameWidth := 24
	for i, d := range m.models {
		cursor := "  "
		if i == m.cursor {
			cursor = t.Selected.Render("> ")
		}
		name := fmt.Sprintf("%-*s", nameWidth, util.TruncateWidth(d.DisplayName, nameWidth))
		if i == m.cursor {
			name = t.Selected.Render(name)
		}
		line := fmt.Sprintf("%s%s %8s  %-6s", cursor, name, d.SizeLabel, d.Requirement)
		if m.profile != nil && d.Category == m.profile.Recommended {
			line += " " + t.Badge.Render("recommended")
		}
		if loaded != nil && loaded.ID == d.ID {
			line += " " + t.Success.Render("loaded")
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n")
	if m.loading {
		f := state.Flags()
		sb.WriteString(m.bar.ViewAs(float64(f.LoadProgress)/100) + "\n")
		sb.WriteString(m.spinner.View() + " " + t.Muted.Render(f.LoadStatus) + "\n")
	}
	if m.errText != "" {
		sb.WriteString(t.Error.Render(m.errText) + "\n")
	}
	sb.WriteString(t.Subtitle.Render("Enter: load   Esc: back   C-c: quit"))
	return m.frame(sb.String())
}

// =============================================================================
// CHAT
// =============================================================================

func (m *Model) viewChat() string {
	t := m.theme
	var sb strings.Builder
	sb.WriteString(m.viewport.View() + "\n")
	sb.WriteString(t.Input.Render(m.input.View()) + "\n")
	sb.WriteString(m.statusLine() + "\n")
	sb.WriteString(m.helpLine())
	return sb.String()
}

func (m *Model) statusLine() string {
	t := m.theme
	state := m.deps.Controller.State()
	f := state.Flags()

	var parts []string
	if model := state.Model(); model != nil {
		parts = append(parts, util.TruncateWidth(model.DisplayName, 24))
		tokens := fmt.Sprintf("%d/%d tokens", f.TokenCount, model.ContextWindow)
		if f.ContextWarning {
			tokens = t.Warning.Render(tokens + " (context nearly full)")
		}
		parts = append(parts, tokens)
	}
	if f.Generating {
		parts = append(parts, m.spinner.View()+" generating (Esc to stop)")
	}
	if a := m.deps.Audit; a != nil {
		parts = append(parts, fmt.Sprintf("gate: %d blocked", a.Blocked()))
	}
	if state.Preferences().AutoDelete {
		parts = append(parts, "auto-delete on")
	}

	line := strings.Join(parts, " | ")
	switch {
	case m.errText != "":
		line = t.Error.Render(m.errText) + "  " + line
	case m.status != "":
		line = t.Success.Render(m.status) + "  " + line
	}
	if m.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
	}
	return t.Status.Render(line)
}

func (m *Model) helpLine() string {
	var items []string
	for _, b := range m.keys.chatHelp() {
		h := b.Help()
		items = append(items, h.Key+" "+h.Desc)
	}
	line := strings.Join(items, "  ")
	if m.width > 0 {
		line = util.TruncateWidth(line, m.width)
	}
	return m.theme.Muted.Render(line)
}

// frame pads a screen to the window.
func (m *Model) frame(s string) string {
	if m.width == 0 {
		return s
	}
	return lipgloss.NewStyle().Padding(1, 2).MaxWidth(m.width).Render(s)
}
