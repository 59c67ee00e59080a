// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/util"
)

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is the line-mode REPL. Input history lives in the liner
// instance only and is never written to disk.
type ChatSession struct {
	env    *Env
	ctrl   *chat.Controller
	format export.Format
	out    io.Writer

	// interrupt derives the context for one reply. Ctrl+C cancels it.
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

func newChatSession(env *Env, format export.Format) *ChatSession {
	return &ChatSession{
		env:    env,
		ctrl:   env.Controller,
		format: format,
		out:    env.Out,
		interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

// RunChat loads a model and runs the REPL until /quit or EOF. The
// conversation is wiped on exit.
func RunChat(ctx context.Context, env *Env, args Args) error {
	format, err := export.ParseFormat(args.Format)
	if err != nil {
		return err
	}
	s := newChatSession(env, format)
	defer s.ctrl.Clear()

	if err := s.load(ctx, s.initialModel(ctx, args.Model)); err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s.printWelcome()
	for {
		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(s.out, DimStyle.Render("Type /quit to exit."))
			continue
		}
		if err != nil {
			// EOF (Ctrl+D) ends the session.
			fmt.Fprintln(s.out)
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		more, err := s.handleLine(ctx, input)
		if err != nil {
			fmt.Fprintln(s.out, ErrorStyle.Render(describeError(err)))
		}
		if !more {
			return nil
		}
	}
}

// initialModel resolves the model to load: the flag, the configured
// default, then the first model of the recommended category.
func (s *ChatSession) initialModel(ctx context.Context, flag string) catalog.ModelDescriptor {
	id := flag
	if id == "" && s.env.Config != nil {
		id = s.env.Config.Engine.DefaultModel
	}
	if id != "" {
		return resolveModel(id)
	}
	if rec := catalog.ForCategory(s.env.profile(ctx).Recommended); len(rec) > 0 {
		return rec[0]
	}
	return catalog.All()[0]
}

func resolveModel(id string) catalog.ModelDescriptor {
	if m, ok := catalog.Lookup(id); ok {
		return m
	}
	return catalog.Custom(id)
}

func (s *ChatSession) load(ctx context.Context, m catalog.ModelDescriptor) error {
	fmt.Fprintf(s.out, "%s %s\n", DimStyle.Render("Loading"), m.ID)
	last := ""
	err := s.ctrl.Load(ctx, m, func() {
		f := s.ctrl.State().Flags()
		status := fmt.Sprintf("%3d%% %s", f.LoadProgress, f.LoadStatus)
		if status != last {
			last = status
			fmt.Fprintf(s.out, "\r%s", DimStyle.Render(status))
		}
	})
	fmt.Fprintln(s.out)
	return err
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

// handleLine processes one line of input. It returns false when the
// session should end.
func (s *ChatSession) handleLine(ctx context.Context, input string) (bool, error) {
	text := strings.TrimSpace(input)
	switch {
	case text == "":
		return true, nil
	case strings.HasPrefix(text, "/"):
		return s.handleSlashCommand(ctx, text)
	default:
		return true, s.send(ctx, text)
	}
}

// send streams a reply, printing each delta as it arrives.
func (s *ChatSession) send(ctx context.Context, text string) error {
	ctx, stop := s.interrupt(ctx)
	defer stop()

	printed := 0
	outcome, err := s.ctrl.Send(ctx, text, func() {
		last := s.ctrl.State().Last()
		if last == nil {
			return
		}
		content := last.Content()
		if len(content) > printed {
			fmt.Fprint(s.out, content[printed:])
			printed = len(content)
		}
	})
	if printed > 0 {
		fmt.Fprintln(s.out)
	}
	if outcome == chat.OutcomeCancelled {
		fmt.Fprintln(s.out, DimStyle.Render("[cancelled]"))
	}
	if f := s.ctrl.State().Flags(); f.ContextWarning {
		fmt.Fprintln(s.out, WarningStyle.Render("Context window almost full. /clear starts over."))
	}
	return err
}

func (s *ChatSession) handleSlashCommand(ctx context.Context, text string) (bool, error) {
	fields := strings.Fields(text)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return false, nil

	case "/help", "/h":
		s.printHelp()

	case "/clear", "/c":
		s.ctrl.Clear()
		fmt.Fprintln(s.out, SuccessStyle.Render("Conversation cleared."))

	case "/export":
		format := s.format
		if len(rest) > 0 {
			f, err := export.ParseFormat(rest[0])
			if err != nil {
				return true, err
			}
			format = f
		}
		return true, s.export(format)

	case "/audit":
		s.printAudit()

	case "/model":
		if len(rest) == 0 {
			if m := s.ctrl.State().Model(); m != nil {
				fmt.Fprintln(s.out, row("Model", m.ID))
			}
			return true, nil
		}
		return true, s.load(ctx, resolveModel(rest[0]))

	case "/system":
		if len(rest) == 0 {
			fmt.Fprintln(s.out, s.ctrl.State().Preferences().SystemPrompt)
			return true, nil
		}
		s.ctrl.State().SetSystemPrompt(strings.TrimSpace(strings.TrimPrefix(text, cmd)))
		fmt.Fprintln(s.out, SuccessStyle.Render("System prompt updated."))

	default:
		return true, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return true, nil
}

func (s *ChatSession) export(format export.Format) error {
	dir := ""
	if s.env.Config != nil {
		dir = s.env.Config.ExportDir
	}
	meta := export.Meta{DarkMode: s.ctrl.State().Preferences().DarkMode}
	if s.env.Guard != nil {
		meta.Watch = s.env.Guard.Watch()
	}
	if m := s.ctrl.State().Model(); m != nil {
		meta.Model = m.ID
	}
	path, err := export.Write(dir, format, s.ctrl.State().Messages(), meta)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, row("Exported", path))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// minURLWidth keeps audit URLs readable on narrow terminals.
const minURLWidth = 24

func (s *ChatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("quietchat"))
	if m := s.ctrl.State().Model(); m != nil {
		fmt.Fprintln(s.out, row("Model", m.ID))
	}
	fmt.Fprintln(s.out, DimStyle.Render("Nothing is saved. /help lists commands, Ctrl+C stops a reply."))
}

func (s *ChatSession) printHelp() {
	fmt.Fprintln(s.out, SectionStyle.Render("Commands"))
	for _, c := range [][2]string{
		{"/clear", "Wipe the conversation"},
		{"/export [md|html|json]", "Write the conversation to a file"},
		{"/audit", "Show recent network decisions"},
		{"/model [id]", "Show or switch the model"},
		{"/system [prompt]", "Show or set the system prompt"},
		{"/quit", "Exit and wipe"},
	} {
		fmt.Fprintln(s.out, row(c[0], c[1]))
	}
}

func (s *ChatSession) printAudit() {
	if s.env.Guard == nil {
		return
	}
	audit := s.env.Guard.Audit()
	entries := audit.Entries()
	fmt.Fprintf(s.out, "%s %s\n", SectionStyle.Render("Network audit"),
		DimStyle.Render(fmt.Sprintf("(%d entries, %d blocked)", len(entries), audit.Blocked())))
	if st := s.env.Guard.Watch().Stats(); st.CheckedInserts > 0 {
		fmt.Fprintln(s.out, row("Markup checks", fmt.Sprintf("%d inserts, %d elements removed, %d attributes stripped",
			st.CheckedInserts, st.RemovedElements, st.StrippedAttributes)))
	}
	width := TerminalWidth()
	for _, e := range entries {
		verdict, label := SuccessStyle.Render("allow"), "allow"
		if !e.Allowed {
			verdict, label = ErrorStyle.Render("block"), "block"
		}
		prefix := fmt.Sprintf("  %s %s %-6s ", e.Timestamp.Format("15:04:05"), label, e.Method)
		room := max(width-util.StringWidth(prefix)-util.StringWidth(e.Reason)-1, minURLWidth)
		fmt.Fprintf(s.out, "  %s %s %-6s %s %s\n",
			e.Timestamp.Format("15:04:05"), verdict, e.Method, util.TruncateWidth(e.URL, room), DimStyle.Render(e.Reason))
	}
}

// describeError prefers the remedy attached to inference errors.
func describeError(err error) string {
	var ie *inference.Error
	if errors.As(err, &ie) {
		if r := ie.Remedy(); r != "" {
			return r
		}
	}
	switch {
	case errors.Is(err, inference.ErrNoModel):
		return "Load a model first with /model."
	case errors.Is(err, inference.ErrBusy):
		return "Wait for the current reply to finish."
	}
	return err.Error()
}
