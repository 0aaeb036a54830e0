// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"
	"time"

	"github.com/jeranaias/arag-cli/internal/logging"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the session store for a process. Every mutation is a
// read-modify-write under one mutex followed by a save, so concurrent
// callers never lose each other's updates.
type Manager struct {
	mu      sync.Mutex
	backend Backend
	store   Store
	now     func() time.Time
}

// NewManager loads the store from backend.
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		store:   Load(backend),
		now:     time.Now,
	}
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Snapshot returns the current store. The value is immutable.
func (m *Manager) Snapshot() Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Update applies fn to the store and persists the result. The new store is
// kept in memory even when saving fails, so nothing typed is lost.
func (m *Manager) Update(fn func(Store, time.Time) Store) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := fn(m.store, m.now())
	m.store = next
	if err := Save(m.backend, next); err != nil {
		logging.Log().Errorf("session save failed: %v", err)
		return next, err
	}
	return next, nil
}

// Create adds a new untitled session and makes it current.
func (m *Manager) Create() (Store, Session, error) {
	var created Session
	store, err := m.Update(func(s Store, now time.Time) Store {
		var next Store
		next, created = CreateSession(s, now)
		return next
	})
	return store, created, err
}

// Delete removes a session by id.
func (m *Manager) Delete(id string) (Store, error) {
	if _, ok := m.Snapshot().Find(id); !ok {
		return m.Snapshot(), &SessionError{Message: ErrSessionNotFound.Message, ID: id}
	}
	return m.Update(func(s Store, _ time.Time) Store {
		return DeleteSession(s, id)
	})
}

// Append adds msg to the session with id.
func (m *Manager) Append(id string, msg Message) (Store, error) {
	return m.Update(func(s Store, now time.Time) Store {
		return AppendMessage(s, id, msg, now)
	})
}

// RenameIfUntitled titles an untitled session from text.
func (m *Manager) RenameIfUntitled(id, text string) (Store, error) {
	return m.Update(func(s Store, _ time.Time) Store {
		return RenameIfUntitled(s, id, text)
	})
}

// SetCurrent switches the current session.
func (m *Manager) SetCurrent(id string) (Store, error) {
	if _, ok := m.Snapshot().Find(id); !ok {
		return m.Snapshot(), &SessionError{Message: ErrSessionNotFound.Message, ID: id}
	}
	return m.Update(func(s Store, _ time.Time) Store {
		return SetCurrent(s, id)
	})
}

// Clear removes every session.
func (m *Manager) Clear() (Store, error) {
	return m.Update(func(Store, time.Time) Store {
		return Store{Sessions: []Session{}}
	})
}

// Reload replaces the in-memory store with what the backend holds.
func (m *Manager) Reload() Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = Load(m.backend)
	return m.store
}

// Close closes the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}
