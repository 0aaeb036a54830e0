// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting.
//
// Every command emits the same envelope under --json so callers can
// parse success and failure alike.
package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the response envelope for all CLI commands.
type JSONResponse struct {
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// ErrorType classifies failures (validation_error, network_error, ...)
	ErrorType string `json:"error_type,omitempty"`

	// Status is the HTTP status of a backend failure; 0 means no response.
	Status *int `json:"status,omitempty"`

	Timestamp string `json:"timestamp"`
	Command   string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := UserMessage(err)
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData is returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// HealthData is returned by the health command.
type HealthData struct {
	BaseURL   string `json:"base_url"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// AskData is returned by the ask command.
type AskData struct {
	SessionID      string   `json:"session_id"`
	Answer         string   `json:"answer"`
	Confidence     *float64 `json:"confidence,omitempty"`
	SourcesUsed    *int     `json:"sources_used,omitempty"`
	RephrasedQuery string   `json:"rephrased_query,omitempty"`
	Iterations     int      `json:"iterations,omitempty"`
}

// SessionSummary describes one session in list output.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview,omitempty"`
	MessageCount int       `json:"message_count"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UploadData is returned by docs upload.
type UploadData struct {
	FileID          string `json:"file_id"`
	Filename        string `json:"filename"`
	TaskID          string `json:"task_id"`
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
	TotalChunks     int    `json:"total_chunks"`
	DurationMS      int64  `json:"duration_ms"`
}
