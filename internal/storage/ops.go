// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/arag-cli/internal/util"
)

// TitleMaxRunes is how much of the first message becomes the title.
const TitleMaxRunes = 50

// =============================================================================
// PURE OPERATIONS
// =============================================================================

// CreateSession prepends a new untitled session and makes it current.
// The new session is returned alongside the new store.
func CreateSession(store Store, now time.Time) (Store, Session) {
	sess := Session{
		ID:        uuid.NewString(),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	sessions := make([]Session, 0, len(store.Sessions)+1)
	sessions = append(sessions, sess)
	sessions = append(sessions, store.Sessions...)
	return Store{Sessions: sessions, CurrentID: sess.ID}, sess
}

// DeleteSession removes the session with id. If it was current, the first
// remaining session becomes current, or none. A missing id changes nothing.
func DeleteSession(store Store, id string) Store {
	i := store.index(id)
	if i < 0 {
		return store
	}

	sessions := make([]Session, 0, len(store.Sessions)-1)
	sessions = append(sessions, store.Sessions[:i]...)
	sessions = append(sessions, store.Sessions[i+1:]...)

	current := store.CurrentID
	if current == id {
		current = ""
		if len(sessions) > 0 {
			current = sessions[0].ID
		}
	}
	return Store{Sessions: sessions, CurrentID: current}
}

// AppendMessage appends msg to the session with id and bumps its UpdatedAt.
// A missing id changes nothing.
func AppendMessage(store Store, id string, msg Message, now time.Time) Store {
	return updateSession(store, id, func(s *Session) {
		s.Messages = append(s.Messages, msg)
		s.UpdatedAt = now
	})
}

// RenameIfUntitled derives the title of an untitled session from text: the
// first TitleMaxRunes runes taken as-is, with "..." appended when text was
// longer. Titled sessions and missing ids are left alone.
func RenameIfUntitled(store Store, id, text string) Store {
	sess, ok := store.Find(id)
	if !ok || !sess.Untitled() {
		return store
	}
	title := util.Abbreviate(text, TitleMaxRunes)
	if title == "" {
		return store
	}
	return updateSession(store, id, func(s *Session) {
		s.Title = title
	})
}

// SetCurrent makes id current if such a session exists.
func SetCurrent(store Store, id string) Store {
	if store.index(id) < 0 {
		return store
	}
	return Store{Sessions: store.Sessions, CurrentID: id}
}

// Current returns the current session, if any.
func Current(store Store) (Session, bool) {
	if store.CurrentID == "" {
		return Session{}, false
	}
	return store.Find(store.CurrentID)
}

// normalize repairs a loaded store: a current id that no longer exists falls
// back to the first session.
func normalize(store Store) Store {
	if store.Sessions == nil {
		store.Sessions = []Session{}
	}
	if store.index(store.CurrentID) < 0 {
		store.CurrentID = ""
		if len(store.Sessions) > 0 {
			store.CurrentID = store.Sessions[0].ID
		}
	}
	return store
}

// updateSession copies the store, applies fn to a copy of the matching
// session and returns the new store.
func updateSession(store Store, id string, fn func(*Session)) Store {
	i := store.index(id)
	if i < 0 {
		return store
	}
	sessions := make([]Session, len(store.Sessions))
	copy(sessions, store.Sessions)
	sess := sessions[i].clone()
	fn(&sess)
	sessions[i] = sess
	return Store{Sessions: sessions, CurrentID: store.CurrentID}
}
