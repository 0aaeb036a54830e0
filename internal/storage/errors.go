// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// ErrSessionNotFound is returned when a session doesn't exist.
// Use errors.Is(err, ErrSessionNotFound) to check for this error.
var ErrSessionNotFound = &SessionError{Message: "session not found"}

// SessionError is a session lookup failure. Errors with the same Message
// compare equal under errors.Is regardless of ID.
type SessionError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return e.Message + ": " + e.ID
}

// Is implements errors.Is support.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
