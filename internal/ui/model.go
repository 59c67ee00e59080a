// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/time/rate"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/detect"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/session"
	"github.com/jeranaias/quietchat/internal/ui/styles"
	"github.com/jeranaias/quietchat/internal/view"
)

// streamFrame caps how often streamed deltas trigger a redraw.
const streamFrame = 33 * time.Millisecond

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Deps are the collaborators the UI drives. Controller and Shell are
// required; the rest may be zero.
type Deps struct {
	Controller *chat.Controller
	Shell      *view.Shell

	Clipboard *guard.ClipboardPolicy
	Audit     *guard.AuditLog
	Signals   *guard.TerminalSignals
	Idle      *session.IdleTimer

	// Profile detects hardware. Nil means detect.Profile.
	Profile func(context.Context) detect.HardwareProfile
	// Models is the selectable list. Nil means catalog.All.
	Models       []catalog.ModelDescriptor
	DefaultModel string

	ExportDir    string
	ExportFormat export.Format
	// Watch sanitises HTML exports.
	Watch *guard.MutationWatch

	Dark   bool
	Logger *slog.Logger
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root tea.Model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	send   func(tea.Msg)

	keys  KeyMap
	theme *styles.Theme

	width  int
	height int

	profile *detect.HardwareProfile
	models  []catalog.ModelDescriptor
	cursor  int
	loading bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	bar      progress.Model

	renderer      *glamour.TermRenderer
	rendererWidth int
	refresh       *rate.Sometimes

	status   string
	errText  string
	quitting bool
}

// New creates the UI model.
func New(deps Deps) *Model {
	if deps.Profile == nil {
		deps.Profile = detect.Profile
	}
	if deps.Models == nil {
		deps.Models = catalog.All()
	}
	if deps.ExportFormat == "" {
		deps.ExportFormat = export.FormatMarkdown
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.Placeholder = "Ask anything. Nothing leaves this machine."
	input.CharLimit = 8000
	input.Prompt = "> "

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := &Model{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		keys:     DefaultKeyMap(),
		theme:    styles.NewTheme(deps.Dark),
		models:   deps.Models,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		refresh:  &rate.Sometimes{Interval: streamFrame},
	}
	deps.Controller.State().SetDarkMode(deps.Dark)
	if deps.DefaultModel != "" {
		m.selectModel(deps.DefaultModel)
	}
	return m
}

// SetNotify installs the function used to deliver messages from
// background work, normally (*tea.Program).Send.
func (m *Model) SetNotify(fn func(tea.Msg)) {
	m.send = fn
}

func (m *Model) notify(msg tea.Msg) {
	if m.send != nil {
		m.send(msg)
	}
}

// Close cancels in-flight work.
func (m *Model) Close() {
	m.deps.Controller.Cancel()
	m.cancel()
}

// Init starts hardware detection, the spinner and the idle ticker.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.profileCmd(), m.spinner.Tick, textinput.Blink}
	if m.deps.Idle != nil {
		cmds = append(cmds, m.deps.Idle.TickCmd())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update routes msg to the current view.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.deps.Idle != nil {
			m.deps.Idle.RecordActivity()
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Theme):
			m.toggleTheme()
			return m, nil
		}
		switch m.deps.Shell.Current() {
		case view.Landing:
			return m.updateLanding(msg)
		case view.ModelSelect:
			return m.updateModelSelect(msg)
		default:
			return m.updateChat(msg)
		}

	case session.TickMsg:
		if m.deps.Idle == nil {
			return m, nil
		}
		return m, m.deps.Idle.HandleTick()

	case session.TimeoutWarningMsg:
		if m.deps.Controller.State().Preferences().AutoDelete && m.deps.Controller.State().Len() > 0 {
			m.status = fmt.Sprintf("Chat will be deleted in %s unless you type something.", msg.Remaining.Round(time.Second))
		}
		return m, nil

	case session.TimeoutMsg:
		if m.deps.Controller.State().Preferences().AutoDelete {
			m.deps.Controller.Clear()
			m.status = "Chat deleted after inactivity."
			m.refreshConversation()
		}
		return m, nil

	case profileMsg:
		p := msg.profile
		m.profile = &p
		if m.deps.DefaultModel == "" {
			m.selectRecommended()
		}
		return m, nil

	case loadUpdateMsg:
		return m, nil

	case loadDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.errText = describeError(msg.err)
			return m, nil
		}
		m.errText = ""
		m.status = fmt.Sprintf("%s ready.", msg.model.DisplayName)
		if _, err := m.deps.Shell.GoTo(view.Chat); err != nil {
			m.errText = describeError(err)
			return m, nil
		}
		m.refreshConversation()
		return m, m.input.Focus()

	case streamUpdateMsg:
		m.refreshConversation()
		return m, nil

	case sendDoneMsg:
		m.refreshConversation()
		switch msg.outcome {
		case chat.OutcomeCancelled:
			m.status = "Stopped."
		case chat.OutcomeFailed:
			m.errText = describeError(msg.err)
		default:
			if msg.err != nil {
				m.errText = describeError(msg.err)
			}
		}
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.errText = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported to " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.deps.Shell.Current() == view.Chat {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateLanding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if _, err := m.deps.Shell.Forward(); err != nil {
			m.errText = describeError(err)
		}
	case msg.String() == "q":
		m.quitting = true
		m.Close()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) updateModelSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.models)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Back):
		if m.loading {
			return m, nil
		}
		m.errText = ""
		_, _ = m.deps.Shell.Back()
	case key.Matches(msg, m.keys.Select):
		if m.loading || len(m.models) == 0 {
			return m, nil
		}
		m.loading = true
		m.errText = ""
		return m, tea.Batch(m.loadCmd(m.models[m.cursor]), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.deps.Controller
	switch {
	case key.Matches(msg, m.keys.Back):
		if ctrl.Generating() {
			ctrl.Cancel()
			return m, nil
		}
		m.input.Blur()
		_, _ = m.deps.Shell.Back()
		return m, nil

	case key.Matches(msg, m.keys.Select):
		text := m.input.Value()
		if ctrl.Generating() || text == "" {
			return m, nil
		}
		m.input.Reset()
		m.errText, m.status = "", ""
		m.viewport.GotoBottom()
		return m, tea.Batch(m.sendCmd(text), m.spinner.Tick)

	case key.Matches(msg, m.keys.Copy):
		m.copyLastAnswer()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		ctrl.Clear()
		m.status = "Chat deleted."
		m.refreshConversation()
		return m, nil

	case key.Matches(msg, m.keys.Export):
		if ctrl.State().Len() == 0 {
			m.status = "Nothing to export."
			return m, nil
		}
		return m, m.exportCmd()

	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	if m.deps.Signals != nil {
		m.deps.Signals.SetViewport(w, h)
	}
	m.viewport.Width = max(10, w)
	m.viewport.Height = max(3, h-7)
	m.input.Width = max(10, w-6)
	m.bar.Width = max(10, min(60, w-10))
	m.refreshConversation()
}

func (m *Model) toggleTheme() {
	m.theme = m.theme.Toggle()
	m.deps.Controller.State().SetDarkMode(m.theme.Dark)
	m.renderer = nil
	m.refreshConversation()
}

// copyLastAnswer copies the newest assistant message. Copying from
// message content is always allowed by the policy.
func (m *Model) copyLastAnswer() {
	msgs := m.deps.Controller.State().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != chat.RoleAssistant || msgs[i].Len() == 0 {
			continue
		}
		if m.deps.Clipboard != nil && m.deps.Clipboard.Copy(guard.RegionMessageContent, msgs[i].Content()) {
			m.status = "Copied answer to clipboard."
		} else {
			m.status = "Clipboard unavailable."
		}
		return
	}
	m.status = "No answer to copy."
}

func (m *Model) selectModel(id string) bool {
	for i, d := range m.models {
		if d.ID == id {
			m.cursor = i
			return true
		}
	}
	return false
}

func (m *Model) selectRecommended() {
	if m.profile == nil {
		return
	}
	for i, d := range m.models {
		if d.Category == m.profile.Recommended {
			m.cursor = i
			return
		}
	}
}
