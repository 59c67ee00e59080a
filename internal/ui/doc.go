// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the Bubble Tea front end.
//
// The model renders the three views of the view shell: landing with the
// hardware profile, model selection with load progress, and the chat.
// Long-running work (model loads, generations, exports) runs in commands;
// streamed deltas reach the update loop through the notify function the
// program installs with SetNotify.
//
// Clipboard writes go through the guard's clipboard policy and every
// window resize is reported to the inspection signals.
package ui
