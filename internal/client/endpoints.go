// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// QueryRequest asks the agent a question over a document domain.
type QueryRequest struct {
	Query         string `json:"query"`
	Domain        string `json:"domain,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// QueryResponse is the agent's answer.
type QueryResponse struct {
	Query          string  `json:"query"`
	Answer         string  `json:"answer"`
	RephrasedQuery *string  `json:"rephrased_query"`
	Confidence     *float64 `json:"confidence"`
	Iterations     int      `json:"iterations"`
	SourcesUsed    *int     `json:"sources_used"`
}

// UploadResponse acknowledges a stored upload.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// EmbeddingResponse acknowledges a started embedding task.
type EmbeddingResponse struct {
	TaskID          string `json:"task_id"`
	FileID          string `json:"file_id"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	ChunksProcessed int    `json:"chunks_processed,omitempty"`
}

// TaskStatusResponse is the server view of a background task.
type TaskStatusResponse struct {
	TaskID          string     `json:"task_id"`
	Status          string     `json:"status"`
	FileID          *string    `json:"file_id"`
	Message         string     `json:"message"`
	ChunksProcessed int        `json:"chunks_processed"`
	TotalChunks     int        `json:"total_chunks"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// Document is an uploaded file as listed by the backend.
type Document struct {
	FileID       string            `json:"file_id"`
	ObjectKey    string            `json:"object_key"`
	Filename     string            `json:"filename"`
	SizeBytes    int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type"`
	LastModified string            `json:"last_modified"`
	Metadata     map[string]string `json:"metadata"`
}

// DocumentList is one page of uploaded documents.
type DocumentList struct {
	Files    []Document `json:"files"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// DeleteResponse acknowledges a deleted document.
type DeleteResponse struct {
	FileID  string `json:"file_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse reports backend liveness.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Default pagination for document listing.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// =============================================================================
// ENDPOINTS
// =============================================================================

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.Execute(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Query asks the agent a question.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.Execute(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadDocument uploads content as a document named name.
// The file part is sent as "document" and the name as "document_name".
func (c *Client) UploadDocument(ctx context.Context, name, contentType string, content io.Reader) (*UploadResponse, error) {
	form := Form{
		Fields: map[string]string{"document_name": name},
		Files: []FormFile{{
			Field:       "document",
			Filename:    name,
			ContentType: contentType,
			Content:     content,
		}},
	}

	var resp UploadResponse
	if err := c.Upload(ctx, "/uploads", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateEmbeddings starts the embedding task for an uploaded file.
func (c *Client) GenerateEmbeddings(ctx context.Context, fileID string) (*EmbeddingResponse, error) {
	var resp EmbeddingResponse
	if err := c.Execute(ctx, http.MethodPost, endpoint("/embeddings", fileID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskStatus fetches the current state of a background task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	var resp TaskStatusResponse
	if err := c.Execute(ctx, http.MethodGet, endpoint("/tasks", taskID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDocuments returns one page of uploaded documents.
// Non-positive page or pageSize fall back to the defaults.
func (c *Client) ListDocuments(ctx context.Context, page, pageSize int) (*DocumentList, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var resp DocumentList
	if err := c.Execute(ctx, http.MethodGet, "/documents?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDocument removes an uploaded document and its embeddings.
func (c *Client) DeleteDocument(ctx context.Context, fileID string) (*DeleteResponse, error) {
	var resp DeleteResponse
	if err := c.Execute(ctx, http.MethodDelete, endpoint("/documents", fileID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
