// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the in-memory conversation and drives the send flow.
//
// Nothing in this package writes chat content to disk. Message text lives
// in private byte buffers so Clear can overwrite it before the list is
// dropped.
//
// # Key Types
//
//   - Message: one chat turn with a wipeable content buffer
//   - State: ordered messages, active model, UI flags and preferences
//   - TokenCounter: tiktoken-backed counting with a length fallback
//   - Controller: send, cancel, clear and load on top of an inference adapter
package chat
