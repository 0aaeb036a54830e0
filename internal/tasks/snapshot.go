// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"time"

	"github.com/jeranaias/arag-cli/internal/client"
)

// =============================================================================
// SERVER STATUS
// =============================================================================

// Status is the backend's view of an embedding task.
type Status string

const (
	// StatusProcessing means the backend is still chunking and embedding.
	StatusProcessing Status = "processing"

	// StatusCompleted means every chunk was embedded.
	StatusCompleted Status = "completed"

	// StatusFailed means the backend gave up; Message says why.
	StatusFailed Status = "failed"
)

// ParseStatus maps a wire status onto the closed set.
// Anything unrecognized is still in progress as far as we can tell.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// String returns the wire form of the status.
func (s Status) String() string {
	return string(s)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is one observation of a task, as returned by GET /tasks/{id}.
type Snapshot struct {
	TaskID          string     `json:"task_id"`
	Status          Status     `json:"status"`
	FileID          *string    `json:"file_id,omitempty"`
	Message         string     `json:"message,omitempty"`
	ChunksProcessed int        `json:"chunks_processed"`
	TotalChunks     int        `json:"total_chunks"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SnapshotFrom converts a wire response into a Snapshot.
func SnapshotFrom(resp *client.TaskStatusResponse) Snapshot {
	if resp == nil {
		return Snapshot{Status: StatusProcessing}
	}
	return Snapshot{
		TaskID:          resp.TaskID,
		Status:          ParseStatus(resp.Status),
		FileID:          resp.FileID,
		Message:         resp.Message,
		ChunksProcessed: resp.ChunksProcessed,
		TotalChunks:     resp.TotalChunks,
		CreatedAt:       resp.CreatedAt,
		CompletedAt:     resp.CompletedAt,
	}
}

// Terminal reports whether no further polling can change the snapshot.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// ProgressPercent returns the chunk progress in 0..100.
// It is 0 while the total is unknown and 100 once completed.
func (s Snapshot) ProgressPercent() int {
	if s.Status == StatusCompleted {
		return 100
	}
	if s.TotalChunks <= 0 {
		return 0
	}
	pct := s.ChunksProcessed * 100 / s.TotalChunks
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
