// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads quietchat settings.
//
// # Configuration Precedence
//
// Settings are resolved in this order, later sources winning:
//   - Built-in defaults
//   - ~/.quietchat/config.toml
//   - .env in the working directory
//   - Environment variables (QUIETCHAT_*)
//
// privacy.persist_chat is accepted for compatibility but always forced off.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	gcfg := cfg.GuardConfig()
package config
