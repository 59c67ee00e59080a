// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/config"
	"github.com/jeranaias/quietchat/internal/detect"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command is a top-level quietchat command.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdModels
	CmdCheck
	CmdScrub
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"":        CmdTUI,
	"tui":     CmdTUI,
	"chat":    CmdChat,
	"models":  CmdModels,
	"check":   CmdCheck,
	"scrub":   CmdScrub,
	"config":  CmdConfig,
	"version": CmdVersion,
	"help":    CmdHelp,
}

func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c && name != "" {
			return name
		}
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Args is the parsed command line.
type Args struct {
	Command Command

	Debug      bool
	ConfigPath string
	Model      string
	Format     string

	// URL and Method are the target of "check".
	URL    string
	Method string

	Raw []string
}

// ErrUsage wraps every command-line error.
var ErrUsage = errors.New("usage error")

// Parse reads argv (without the program name).
func Parse(argv []string) (Args, error) {
	p := NewArgParser(argv, "debug", "help", "h", "version")
	args := Args{
		Debug:      p.BoolFlag("debug"),
		ConfigPath: p.FirstFlag("config", "c"),
		Model:      p.FirstFlag("model", "m"),
		Format:     p.FirstFlag("format", "f"),
		Method:     strings.ToUpper(p.FlagOrDefault("method", http.MethodGet)),
		Raw:        argv,
	}

	if p.BoolFlag("help", "h") {
		args.Command = CmdHelp
		return args, nil
	}
	if p.BoolFlag("version") {
		args.Command = CmdVersion
		return args, nil
	}

	sub := p.Subcommand()
	cmd, ok := commandNames[sub]
	if !ok {
		return args, fmt.Errorf("%w: unknown command %q", ErrUsage, sub)
	}
	args.Command = cmd

	if cmd == CmdCheck {
		args.URL = p.Positional(1)
		if args.URL == "" {
			return args, fmt.Errorf("%w: check needs a URL", ErrUsage)
		}
	}
	if args.Format != "" {
		if _, err := export.ParseFormat(args.Format); err != nil {
			return args, fmt.Errorf("%w: %v", ErrUsage, err)
		}
	}
	return args, nil
}

const usageText = `quietchat - private chat with a local language model

Conversations stay in memory. Outbound requests are limited to the
inference server and an allow-list, and storage is scrubbed on a timer.

Usage:
  quietchat [tui]             Start the terminal UI (default)
  quietchat chat              Line-mode chat
  quietchat models            List models with hardware recommendation
  quietchat check URL         Show the network gate decision for URL
  quietchat scrub             Clear storage now and print the report
  quietchat config            Print the effective configuration
  quietchat version           Print version information

Flags:
  -c, --config PATH           Config file (default ~/.quietchat/config.toml)
  -m, --model ID              Model to load (chat) or preselect (tui)
  -f, --format md|html|json   Export format
      --method VERB           Method for check (default GET)
      --debug                 Log to stderr
  -h, --help                  Show this help

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "quietchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// ModelLister lists cached models.
type ModelLister interface {
	List(ctx context.Context) ([]storage.ModelRecord, error)
}

// ServerModels lists the models the inference server already holds.
type ServerModels interface {
	Models(ctx context.Context) ([]string, error)
}

// Env holds what the line-mode commands operate on. It is assembled by
// main after the guard is installed.
type Env struct {
	Config     *config.Config
	Guard      *guard.Guard
	Controller *chat.Controller
	Cache      ModelLister
	// Server is queried for a health line. Nil skips it.
	Server ServerModels
	// Profile detects hardware. Nil means detect.Profile.
	Profile func(context.Context) detect.HardwareProfile

	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
}

func (e *Env) profile(ctx context.Context) detect.HardwareProfile {
	if e.Profile != nil {
		return e.Profile(ctx)
	}
	return detect.Profile(ctx)
}

// Run executes a line-mode command. CmdTUI is handled by the caller.
func Run(ctx context.Context, env *Env, args Args) error {
	switch args.Command {
	case CmdChat:
		return RunChat(ctx, env, args)
	case CmdModels:
		return RunModels(ctx, env)
	case CmdCheck:
		return RunCheck(env, args.Method, args.URL)
	case CmdScrub:
		return RunScrub(ctx, env)
	case CmdConfig:
		return RunConfig(env)
	case CmdVersion:
		PrintVersion(env.Out)
		return nil
	case CmdHelp:
		PrintUsage(env.Out)
		return nil
	default:
		return fmt.Errorf("%w: %s is not a line-mode command", ErrUsage, args.Command)
	}
}

// =============================================================================
// MODELS
// =============================================================================

// RunModels prints the server status and the catalog, marking the
// recommended category and any model already fetched or on the server.
func RunModels(ctx context.Context, env *Env) error {
	p := env.profile(ctx)

	cached := make(map[string]bool)
	if env.Cache != nil {
		records, err := env.Cache.List(ctx)
		if err != nil {
			env.Logger.Debug("MODEL_CACHE_LIST_FAILED", "error", err)
		}
		for _, r := range records {
			cached[strings.ToLower(r.ID)] = true
		}
	}

	out := env.Out
	fmt.Fprintln(out, TitleStyle.Render("Models"))
	fmt.Fprintln(out, DimStyle.Render(p.String()))
	if env.Server != nil {
		names, err := env.Server.Models(ctx)
		if err != nil {
			fmt.Fprintln(out, row("Server", WarningStyle.Render(describeError(inference.Classify("list models", err)))))
		} else {
			fmt.Fprintln(out, row("Server", SuccessStyle.Render(fmt.Sprintf("running, %d model(s)", len(names)))))
		}
		for _, n := range names {
			cached[strings.ToLower(n)] = true
		}
	}
	fmt.Fprintln(out)
	for _, m := range catalog.All() {
		var marks []string
		if m.Category == p.Recommended {
			marks = append(marks, SuccessStyle.Render("recommended"))
		}
		if cached[strings.ToLower(m.ID)] {
			marks = append(marks, DimStyle.Render("cached"))
		}
		fmt.Fprintf(out, "  %-14s %-16s %8s  %-8s %s\n",
			m.ID, m.DisplayName, m.SizeLabel, m.Category, strings.Join(marks, " "))
	}
	return nil
}

// =============================================================================
// CHECK
// =============================================================================

// RunCheck prints the gate decision for method and rawURL. A blocked
// decision is returned as a *guard.BlockedError.
func RunCheck(env *Env, method, rawURL string) error {
	d := env.Guard.Gate().Check(method, rawURL)
	if d.Allowed {
		fmt.Fprintf(env.Out, "%s %s %s\n", SuccessStyle.Render("allowed"), rawURL, DimStyle.Render("("+d.Reason+")"))
		return nil
	}
	fmt.Fprintf(env.Out, "%s %s %s\n", ErrorStyle.Render("blocked"), rawURL, DimStyle.Render("("+d.Reason+")"))
	return &guard.BlockedError{URL: rawURL, Reason: d.Reason}
}

// =============================================================================
// SCRUB
// =============================================================================

// RunScrub scrubs storage once and prints the report.
func RunScrub(ctx context.Context, env *Env) error {
	r := env.Guard.Scrubber().Scrub(ctx)
	printScrubReport(env.Out, r)
	if r.Failures > 0 {
		return fmt.Errorf("scrub finished with %d failure(s)", r.Failures)
	}
	return nil
}

func printScrubReport(w io.Writer, r guard.ScrubReport) {
	fmt.Fprintln(w, TitleStyle.Render("Scrub"))
	fmt.Fprintln(w, row("Key-value store", clearedLabel(r.KeyValueCleared)))
	fmt.Fprintln(w, row("Session store", clearedLabel(r.SessionCleared)))
	fmt.Fprintln(w, row("Deleted databases", listOrNone(r.Deleted)))
	fmt.Fprintln(w, row("Kept databases", listOrNone(r.Kept)))
	if r.Failures > 0 {
		fmt.Fprintln(w, row("Failures", WarningStyle.Render(fmt.Sprint(r.Failures))))
	}
}

func clearedLabel(ok bool) string {
	if ok {
		return "cleared"
	}
	return "skipped"
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// =============================================================================
// CONFIG
// =============================================================================

// RunConfig prints the effective configuration with secrets redacted.
func RunConfig(env *Env) error {
	fmt.Fprint(env.Out, env.Config.String())
	return nil
}
