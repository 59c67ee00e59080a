// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks user inactivity so an idle conversation can be
// wiped automatically.
//
// # Usage
//
//	timer := session.NewIdleTimer(session.DefaultConfig(), nil)
//	timer.SetExpireCallback(controller.Clear)
//	// on every key press:
//	timer.RecordActivity()
//	// in the Bubble Tea loop:
//	case session.TickMsg:
//	    return m, timer.HandleTick()
package session
