// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across arag.
//
// # Key Functions
//
// Text:
//   - Abbreviate: first N runes plus "..." (session titles)
//   - TruncateRunes, TruncateWidth: fit text into a column
//   - PadRight, StringWidth: width-aware table layout
//
// Files:
//   - AtomicWriteFile: crash-safe writes with fsync and rename
//   - FormatFileSize: 1024-based human sizes
//
// # Usage
//
//	title := util.Abbreviate(firstMessage, 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
