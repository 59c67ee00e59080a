// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements quietchat's command line: argument parsing and
// the line-mode commands that run without the terminal UI.
//
// # Commands
//
//   - chat: a liner REPL over the same chat controller the TUI uses
//   - models: the catalog with the hardware recommendation and cache marks
//   - check: the network gate decision for a URL
//   - scrub: an immediate storage scrub
//   - config: the effective configuration, secrets redacted
//
// # Usage
//
//	args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//	    cli.PrintUsage(os.Stderr)
//	    os.Exit(2)
//	}
//	if args.Command != cli.CmdTUI {
//	    err = cli.Run(ctx, env, args)
//	}
package cli
