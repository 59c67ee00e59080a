// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/detect"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/inference"
)

// =============================================================================
// MESSAGES
// =============================================================================

type profileMsg struct {
	profile detect.HardwareProfile
}

// loadUpdateMsg means load progress moved; the flags hold the value.
type loadUpdateMsg struct{}

type loadDoneMsg struct {
	model catalog.ModelDescriptor
	err   error
}

// streamUpdateMsg means the last message grew.
type streamUpdateMsg struct{}

type sendDoneMsg struct {
	outcome chat.Outcome
	err     error
}

type exportDoneMsg struct {
	path string
	err  error
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) profileCmd() tea.Cmd {
	return func() tea.Msg {
		return profileMsg{profile: m.deps.Profile(m.ctx)}
	}
}

func (m *Model) loadCmd(desc catalog.ModelDescriptor) tea.Cmd {
	return func() tea.Msg {
		err := m.deps.Controller.Load(m.ctx, desc, func() {
			m.notify(loadUpdateMsg{})
		})
		return loadDoneMsg{model: desc, err: err}
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.deps.Controller.Send(m.ctx, text, func() {
			m.refresh.Do(func() { m.notify(streamUpdateMsg{}) })
		})
		return sendDoneMsg{outcome: out, err: err}
	}
}

func (m *Model) exportCmd() tea.Cmd {
	state := m.deps.Controller.State()
	meta := export.Meta{Title: "quietchat", DarkMode: m.theme.Dark, Watch: m.deps.Watch}
	if model := state.Model(); model != nil {
		meta.Model = model.ID
	}
	messages := state.Messages()
	dir, format := m.deps.ExportDir, m.deps.ExportFormat
	return func() tea.Msg {
		path, err := export.Write(dir, format, messages, meta)
		return exportDoneMsg{path: path, err: err}
	}
}

// describeError turns an error into the line shown to the user.
func describeError(err error) string {
	var ie *inference.Error
	if errors.As(err, &ie) {
		if r := ie.Remedy(); r != "" {
			return r
		}
	}
	if errors.Is(err, inference.ErrNoModel) {
		return "Load a model first."
	}
	if errors.Is(err, inference.ErrBusy) {
		return "Wait for the current reply to finish."
	}
	return err.Error()
}
