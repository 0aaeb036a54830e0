// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/arag-cli/internal/logging"
)

// =============================================================================
// REGISTRY
// =============================================================================

// Registry keeps the records of active and recently finished watches so a
// long-running REPL can list them and report completions.
type Registry struct {
	tasks []*Task

	// maxHistory is the maximum number of finished records to keep (0 = unlimited)
	maxHistory int

	mu         sync.RWMutex
	notifyChan chan Notification
}

// Notification reports a watch reaching a terminal state.
type Notification struct {
	ID          string
	TaskID      string
	Description string
	State       State
	Error       string
	Duration    time.Duration
}

// NewRegistry creates a registry keeping at most maxHistory finished records.
func NewRegistry(maxHistory int) *Registry {
	return &Registry{
		tasks:      make([]*Task, 0),
		maxHistory: maxHistory,
		notifyChan: make(chan Notification, 100),
	}
}

// Add registers a record.
func (r *Registry) Add(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

// Get retrieves a record by local ID, ID prefix or backend task ID.
// Returns nil if nothing matches.
func (r *Registry) Get(id string) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.tasks {
		if task.ID == id || task.TaskID == id {
			return task.Clone()
		}
	}
	if len(id) >= 4 {
		for _, task := range r.tasks {
			if len(task.ID) >= len(id) && task.ID[:len(id)] == id {
				return task.Clone()
			}
		}
	}
	return nil
}

// All returns copies of every record, oldest first.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Task, len(r.tasks))
	for i, task := range r.tasks {
		result[i] = task.Clone()
	}
	return result
}

// Active returns copies of records that have not finished.
func (r *Registry) Active() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Task, 0)
	for _, task := range r.tasks {
		if !task.IsComplete() {
			result = append(result, task.Clone())
		}
	}
	return result
}

// Count returns the number of records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Notifications returns the completion channel.
func (r *Registry) Notifications() <-chan Notification {
	return r.notifyChan
}

// finished is called by a watch after its record went terminal.
func (r *Registry) finished(task *Task) {
	c := task.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.notifyChan <- Notification{
		ID:          c.ID,
		TaskID:      c.TaskID,
		Description: c.Description,
		State:       c.State,
		Error:       c.Error,
		Duration:    c.EndTime.Sub(c.StartTime),
	}:
	default:
		logging.Log().Warnf("notification channel full, dropped %s (%s)", c.TaskID, c.State)
	}

	r.cleanupLocked()
}

// cleanupLocked drops the oldest finished records beyond maxHistory.
// Must be called with lock held.
func (r *Registry) cleanupLocked() {
	if r.maxHistory <= 0 {
		return
	}

	finished := 0
	for _, task := range r.tasks {
		if task.IsComplete() {
			finished++
		}
	}
	if finished <= r.maxHistory {
		return
	}

	toRemove := finished - r.maxHistory
	kept := make([]*Task, 0, len(r.tasks)-toRemove)
	for _, task := range r.tasks {
		if task.IsComplete() && toRemove > 0 {
			toRemove--
			continue
		}
		kept = append(kept, task)
	}
	r.tasks = kept
}

// Clear removes all finished records.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]*Task, 0)
	for _, task := range r.tasks {
		if !task.IsComplete() {
			kept = append(kept, task)
		}
	}
	r.tasks = kept
}

// Summary returns a formatted count by state.
func (r *Registry) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var running, complete, failed int
	for _, task := range r.tasks {
		switch task.GetState() {
		case StateQueued, StateRunning:
			running++
		case StateComplete:
			complete++
		case StateFailed, StateTimedOut:
			failed++
		}
	}
	return fmt.Sprintf("Running: %d | Completed: %d | Failed: %d", running, complete, failed)
}
