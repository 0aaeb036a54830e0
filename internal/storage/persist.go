// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/arag-cli/internal/logging"
)

// Persistence keys.
const (
	KeySessions = "arag_chat_sessions"
	KeyCurrent  = "arag_current_session"
)

// Load reads the store from b. Missing or corrupt data yields an empty store;
// a dangling current id falls back to the first session.
func Load(b Backend) Store {
	var store Store

	raw, ok, err := b.Get(KeySessions)
	switch {
	case err != nil:
		logging.Log().Warnf("failed to read sessions, starting empty: %v", err)
	case ok && raw != "":
		if err := json.Unmarshal([]byte(raw), &store.Sessions); err != nil {
			logging.Log().Warnf("corrupt sessions blob, starting empty: %v", err)
			store.Sessions = nil
		}
	}

	raw, ok, err = b.Get(KeyCurrent)
	if err == nil && ok {
		if json.Unmarshal([]byte(raw), &store.CurrentID) != nil {
			store.CurrentID = raw
		}
	}

	return normalize(store)
}

// Save writes the whole store to b. Both values are JSON encoded.
func Save(b Backend, store Store) error {
	sessions := store.Sessions
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := b.Set(KeySessions, string(data)); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}

	if store.CurrentID == "" {
		err = b.Remove(KeyCurrent)
	} else {
		id, _ := json.Marshal(store.CurrentID)
		err = b.Set(KeyCurrent, string(id))
	}
	if err != nil {
		return fmt.Errorf("failed to save current session: %w", err)
	}
	return nil
}
