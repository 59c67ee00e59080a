// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the UI and export code.
//
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - TruncateWidth, StringWidth: display-width aware truncation
package util
