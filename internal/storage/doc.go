// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat session persistence for arag.
//
// The session store is an immutable value: every operation (CreateSession,
// DeleteSession, AppendMessage, RenameIfUntitled, SetCurrent) returns a new
// Store and leaves its input untouched. A Manager serializes those operations
// for a process and saves the whole store after each one.
//
// # Backends
//
//   - FileBackend: one JSON file per key, written atomically
//   - SQLiteBackend: a kv table in a pure-Go SQLite database
//   - MemoryBackend: nothing touches disk
//
// # Usage
//
//	backend, err := storage.Open("file", dataDir)
//	m := storage.NewManager(backend)
//	_, sess, _ := m.Create()
//	m.Append(sess.ID, storage.NewUserMessage("hello", time.Now()))
package storage
