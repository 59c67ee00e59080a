// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the in-memory conversation to a local file.
//
// # Formats
//
//   - Markdown: plain text with YAML frontmatter
//   - HTML: markdown rendered by goldmark, sanitised by bluemonday, then
//     passed through the guard's mutation watch before serialisation
//   - JSON: message list with ids and timestamps
//
// Export never touches the network. Files are written atomically with
// owner-only permissions.
//
// # Usage
//
//	data, err := export.HTML(state.Messages(), export.Meta{Title: "notes", Model: id})
//	path, err := export.ToFile(dir, "notes", ".html", data)
package export
