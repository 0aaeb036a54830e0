// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LOCAL STATE
// =============================================================================

// State is the client-side lifecycle of a watch.
type State string

const (
	// StateQueued indicates the watch exists but has not fetched yet
	StateQueued State = "Queued"

	// StateRunning indicates polling is in progress
	StateRunning State = "Running"

	// StateComplete indicates the task reached completed
	StateComplete State = "Complete"

	// StateFailed indicates the task failed or polling hit a transport error
	StateFailed State = "Failed"

	// StateCanceled indicates the watch was canceled locally
	StateCanceled State = "Canceled"

	// StateTimedOut indicates the attempt or duration ceiling was reached
	StateTimedOut State = "TimedOut"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Done reports whether the state is terminal.
func (s State) Done() bool {
	switch s {
	case StateComplete, StateFailed, StateCanceled, StateTimedOut:
		return true
	}
	return false
}

// =============================================================================
// TASK RECORD
// =============================================================================

// Task is the local record of one watched backend task.
type Task struct {
	// ID is a unique identifier for this record
	ID string

	// TaskID is the backend task being watched
	TaskID string

	// Description is a human-readable label, usually the file name
	Description string

	State     State
	StartTime time.Time
	EndTime   time.Time

	// Progress is 0-100, taken from the latest snapshot
	Progress int

	// Message is the latest server message
	Message string

	// Error is the failure text, if any
	Error string

	mu sync.RWMutex
}

// NewTask creates a queued record for the backend task taskID.
func NewTask(taskID, description string) *Task {
	if description == "" {
		description = "task " + taskID
	}
	return &Task{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Description: description,
		State:       StateQueued,
	}
}

// GetState returns the current state (thread-safe).
func (t *Task) GetState() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// GetProgress returns the current progress (thread-safe).
func (t *Task) GetProgress() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// markStarted moves a queued record to running.
func (t *Task) markStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != StateQueued {
		return
	}
	t.State = StateRunning
	t.StartTime = time.Now()
}

// observe records a snapshot.
func (t *Task) observe(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State.Done() {
		return
	}
	t.Progress = s.ProgressPercent()
	t.Message = s.Message
}

// finish moves the record into a terminal state. The first call wins.
func (t *Task) finish(state State, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State.Done() {
		return false
	}
	t.State = state
	t.EndTime = time.Now()
	if t.StartTime.IsZero() {
		t.StartTime = t.EndTime
	}
	if state == StateComplete {
		t.Progress = 100
	}
	if err != nil {
		t.Error = err.Error()
	}
	return true
}

// Duration returns how long the watch has been running or took to finish.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// IsComplete returns true once the record reached any terminal state.
func (t *Task) IsComplete() bool {
	return t.GetState().Done()
}

// Summary returns a one-line summary of the record.
func (t *Task) Summary() string {
	t.mu.RLock()
	id, taskID, desc, state, progress := t.ID, t.TaskID, t.Description, t.State, t.Progress
	t.mu.RUnlock()

	if len(id) > 8 {
		id = id[:8]
	}
	summary := fmt.Sprintf("[%s] task %s", id, taskID)
	if desc != "" {
		summary += " " + desc
	}
	summary += fmt.Sprintf(" - %s", state)
	if state == StateRunning {
		summary += fmt.Sprintf(" %d%%", progress)
	}
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%.1fs)", d.Seconds())
	}
	return summary
}

// Clone returns a copy safe for reading without the lock.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:          t.ID,
		TaskID:      t.TaskID,
		Description: t.Description,
		State:       t.State,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Progress:    t.Progress,
		Message:     t.Message,
		Error:       t.Error,
	}
}
