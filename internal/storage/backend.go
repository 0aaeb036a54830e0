// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/arag-cli/internal/util"
)

// Backend is a string key-value store holding the persisted blobs.
type Backend interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// SQLiteFile is the database file name used by Open for KindSQLite.
const SQLiteFile = "arag.db"

// Open creates the backend of the given kind rooted at dir.
func Open(kind, dir string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", KindFile:
		return NewFileBackend(dir)
	case KindSQLite:
		return OpenSQLite(filepath.Join(dir, SQLiteFile))
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want file, sqlite or memory)", kind)
	}
}

// =============================================================================
// MEMORY
// =============================================================================

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func (b *MemoryBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// =============================================================================
// FILE
// =============================================================================

// FileBackend stores each key as <dir>/<key>.json, written atomically.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the data directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the data directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Path returns the file holding key.
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *FileBackend) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(b.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (b *FileBackend) Set(key, value string) error {
	return util.AtomicWriteFile(b.Path(key), []byte(value), 0600)
}

func (b *FileBackend) Remove(key string) error {
	if err := os.Remove(b.Path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
