// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat session.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Answer metadata (assistant messages only)
	Confidence     *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	SourcesUsed    *int     `json:"sources_used,omitempty" yaml:"sources_used,omitempty"`
	RephrasedQuery string   `json:"rephrased_query,omitempty" yaml:"rephrased_query,omitempty"`
}

// NewUserMessage creates a user message stamped with now.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: now,
	}
}

// NewAssistantMessage creates an assistant message stamped with now.
func NewAssistantMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now,
	}
}

// =============================================================================
// SESSION
// =============================================================================

// UntitledTitle is how a session without a title is shown.
const UntitledTitle = "New Chat"

// Session is one conversation thread.
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Untitled reports whether the session still waits for a derived title.
func (s Session) Untitled() bool {
	return s.Title == ""
}

// DisplayTitle returns the title, or UntitledTitle.
func (s Session) DisplayTitle() string {
	if s.Untitled() {
		return UntitledTitle
	}
	return s.Title
}

// Preview returns the first user message, if any.
func (s Session) Preview() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// clone copies the session including its message slice.
func (s Session) clone() Session {
	c := s
	c.Messages = append([]Message(nil), s.Messages...)
	return c
}

// =============================================================================
// STORE
// =============================================================================

// Store is the full set of sessions plus the current pointer.
// Sessions are ordered most recent first. A Store value is never mutated by
// the operations in this package; each returns a new one.
type Store struct {
	Sessions  []Session `json:"sessions"`
	CurrentID string    `json:"current_id,omitempty"`
}

// Find returns the session with id.
func (s Store) Find(id string) (Session, bool) {
	if i := s.index(id); i >= 0 {
		return s.Sessions[i], true
	}
	return Session{}, false
}

// Resolve finds a session by exact id, then by unique id prefix.
func (s Store) Resolve(ref string) (Session, error) {
	if ref == "" {
		return Session{}, ErrSessionNotFound
	}
	if sess, ok := s.Find(ref); ok {
		return sess, nil
	}
	var match *Session
	for i := range s.Sessions {
		if len(s.Sessions[i].ID) >= len(ref) && s.Sessions[i].ID[:len(ref)] == ref {
			if match != nil {
				return Session{}, &SessionError{Message: "ambiguous session id", ID: ref}
			}
			match = &s.Sessions[i]
		}
	}
	if match == nil {
		return Session{}, &SessionError{Message: ErrSessionNotFound.Message, ID: ref}
	}
	return *match, nil
}

// Len returns the number of sessions.
func (s Store) Len() int {
	return len(s.Sessions)
}

func (s Store) index(id string) int {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}
