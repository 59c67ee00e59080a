// quietchat - private chat with a local language model.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/quietchat/internal/chat"
	"github.com/jeranaias/quietchat/internal/cli"
	"github.com/jeranaias/quietchat/internal/config"
	"github.com/jeranaias/quietchat/internal/export"
	"github.com/jeranaias/quietchat/internal/guard"
	"github.com/jeranaias/quietchat/internal/inference"
	"github.com/jeranaias/quietchat/internal/oaicompat"
	"github.com/jeranaias/quietchat/internal/ollama"
	"github.com/jeranaias/quietchat/internal/session"
	"github.com/jeranaias/quietchat/internal/storage"
	"github.com/jeranaias/quietchat/internal/ui"
	"github.com/jeranaias/quietchat/internal/ui/styles"
	"github.com/jeranaias/quietchat/internal/view"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		cli.PrintUsage(os.Stderr)
		return 2
	}
	switch args.Command {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return 0
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return 0
	}

	logger := newLogger(args)
	slog.SetDefault(logger)

	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if args.Model != "" {
		cfg.Engine.DefaultModel = args.Model
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	if args.Command == cli.CmdTUI {
		err = a.runTUI(args)
	} else {
		err = cli.Run(ctx, &cli.Env{
			Config:     cfg,
			Guard:      a.guard,
			Controller: a.controller,
			Cache:      a.models,
			Server:     a.server(),
			Out:        os.Stdout,
			Logger:     logger,
		}, args)
	}
	if err != nil {
		var blocked *guard.BlockedError
		if !errors.As(err, &blocked) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// newLogger writes debug output to stderr with --debug. Otherwise the TUI
// logs nothing and line-mode commands log warnings only.
func newLogger(args cli.Args) *slog.Logger {
	switch {
	case args.Debug:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case args.Command == cli.CmdTUI:
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

// =============================================================================
// APPLICATION
// =============================================================================

// app owns every long-lived component for one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	kv         *storage.KeyValue
	dbs        *storage.Databases
	models     *storage.ModelCache
	signals    *guard.TerminalSignals
	guard      *guard.Guard
	engine     inference.Engine
	adapter    *inference.Adapter
	state      *chat.State
	controller *chat.Controller
}

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	kv, err := storage.OpenKeyValue(filepath.Join(cfg.DataDir, "local-storage.db"))
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	a.kv = kv

	dbs, err := storage.NewDatabases(filepath.Join(cfg.DataDir, "databases"))
	if err != nil {
		a.close()
		return nil, err
	}
	a.dbs = dbs

	models, err := storage.OpenModelCache(ctx, dbs)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open model cache: %w", err)
	}
	a.models = models

	a.signals = guard.NewTerminalSignals()
	a.guard = guard.New(cfg.GuardConfig(), guard.Surfaces{
		KeyValue:  kv,
		Session:   storage.NewSession(),
		Databases: dbs,
		Clipboard: systemClipboard{},
		Signals:   a.signals,
		Watcher:   storage.NewWatcher(dbs, 250*time.Millisecond),
	}, guard.WithLogger(logger))
	a.guard.Install()

	a.engine = newEngine(cfg, a.guard.HTTPClient(), models, logger)
	a.adapter = inference.NewAdapter(a.engine, logger)
	a.state = chat.NewState(chat.NewTokenCounter(), func() {
		a.guard.Scrubber().Scrub(ctx)
	})
	a.state.SetAutoDelete(cfg.Privacy.AutoDelete)
	if cfg.UI.SystemPrompt != "" {
		a.state.SetSystemPrompt(cfg.UI.SystemPrompt)
	}
	a.controller = chat.NewController(a.state, a.adapter, logger)
	a.guard.SetWipe(a.controller.Clear)

	a.guard.Start(ctx)
	return a, nil
}

// newEngine builds the configured inference engine on the gated client.
func newEngine(cfg *config.Config, client *http.Client, models *storage.ModelCache, logger *slog.Logger) inference.Engine {
	if cfg.Engine.Kind == config.EngineOpenAI {
		return oaicompat.NewEngine(oaicompat.Config{
			BaseURL:    cfg.Engine.BaseURL,
			APIKey:     cfg.Engine.APIKey,
			HTTPClient: client,
		}, logger)
	}

	return ollama.NewEngine(ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:    cfg.Engine.BaseURL,
		Timeout:    cfg.Timeout(),
		KeepAlive:  cfg.Engine.KeepAlive,
		HTTPClient: client,
	}), models, logger)
}

// server returns the engine as a model source when it can list models.
func (a *app) server() cli.ServerModels {
	if s, ok := a.engine.(cli.ServerModels); ok {
		return s
	}
	return nil
}

// close wipes the conversation, stops the guard with a final scrub and
// releases storage.
func (a *app) close() {
	if a.controller != nil {
		a.controller.Clear()
	}
	if a.adapter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.adapter.Unload(ctx); err != nil {
			a.logger.Debug("UNLOAD_FAILED", "error", err)
		}
		cancel()
	}
	if a.guard != nil {
		r := a.guard.Close()
		a.logger.Debug("FINAL_SCRUB", "deleted", len(r.Deleted), "failures", r.Failures)
	}
	if a.dbs != nil {
		a.dbs.Close()
	}
	if a.kv != nil {
		a.kv.Close()
	}
}

// =============================================================================
// TUI
// =============================================================================

func (a *app) runTUI(args cli.Args) error {
	format, err := export.ParseFormat(args.Format)
	if err != nil {
		return err
	}

	dark := a.cfg.UI.Theme == "dark"
	if a.cfg.UI.Theme == "auto" {
		dark = styles.DetectDark()
	}

	idle := session.NewIdleTimer(session.Config{
		Timeout:       a.cfg.IdleTimeout(),
		WarningBefore: time.Minute,
	}, nil)

	m := ui.New(ui.Deps{
		Controller:   a.controller,
		Shell:        view.NewShell(func() bool { return a.adapter.Loaded() != nil }),
		Clipboard:    a.guard.Clipboard(),
		Audit:        a.guard.Audit(),
		Signals:      a.signals,
		Idle:         idle,
		DefaultModel: a.cfg.Engine.DefaultModel,
		ExportDir:    a.cfg.ExportDir,
		ExportFormat: format,
		Watch:        a.guard.Watch(),
		Dark:         dark,
		Logger:       a.logger,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	m.SetNotify(p.Send)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}
