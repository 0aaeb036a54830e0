// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest validates a document locally, uploads it, starts its
// embedding task and follows the task to completion.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/logging"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

// Stage is a step of the ingestion pipeline.
type Stage string

const (
	StageValidating Stage = "validating"
	StageUploading  Stage = "uploading"
	StageEmbedding  Stage = "embedding"
	StageProcessing Stage = "processing"
	StageDone       Stage = "done"
)

// ErrNoTask means the backend accepted the embedding request without
// returning a task to follow.
var ErrNoTask = errors.New("embedding started without a task id")

// Progress is reported at every stage and for every task snapshot.
type Progress struct {
	Stage  Stage
	File   string
	FileID string
	TaskID string

	// Snapshot is set during StageProcessing and StageDone.
	Snapshot *tasks.Snapshot
}

// File is a document to ingest.
type File struct {
	Name string
	Size int64

	// ContentType is detected from Name (and content) when empty.
	ContentType string
	Content     io.Reader
}

// Result is a finished ingestion.
type Result struct {
	Upload *client.UploadResponse
	TaskID string
	Final  tasks.Snapshot
}

// API is the subset of the backend ingestion needs. *client.Client satisfies it.
type API interface {
	UploadDocument(ctx context.Context, name, contentType string, content io.Reader) (*client.UploadResponse, error)
	GenerateEmbeddings(ctx context.Context, fileID string) (*client.EmbeddingResponse, error)
}

// Ingester runs the validate, upload, embed and poll pipeline.
type Ingester struct {
	api     API
	poller  *tasks.Poller
	maxSize int64
}

// New creates an ingester. maxSize <= 0 means MaxFileSize.
func New(api API, poller *tasks.Poller, maxSize int64) *Ingester {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	return &Ingester{api: api, poller: poller, maxSize: maxSize}
}

// MaxSize returns the effective size limit.
func (i *Ingester) MaxSize() int64 {
	return i.maxSize
}

// Ingest runs the pipeline for f, stopping at the first error. Nothing is
// sent to the backend when validation fails.
func (i *Ingester) Ingest(ctx context.Context, f File, onProgress func(Progress)) (Result, error) {
	report := func(p Progress) {
		p.File = f.Name
		if onProgress != nil {
			onProgress(p)
		}
	}

	report(Progress{Stage: StageValidating})
	if f.Content == nil {
		return Result{}, fmt.Errorf("%s: no content", f.Name)
	}
	content := f.Content
	if f.ContentType == "" {
		br := bufio.NewReaderSize(f.Content, 512)
		head, _ := br.Peek(512)
		f.ContentType = DetectType(f.Name, head)
		content = br
	}
	if err := Validate(f.Name, f.ContentType, f.Size, i.maxSize); err != nil {
		return Result{}, err
	}

	report(Progress{Stage: StageUploading})
	up, err := i.api.UploadDocument(ctx, f.Name, f.ContentType, content)
	if err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}
	result := Result{Upload: up}

	report(Progress{Stage: StageEmbedding, FileID: up.FileID})
	emb, err := i.api.GenerateEmbeddings(ctx, up.FileID)
	if err != nil {
		return result, fmt.Errorf("start embeddings for %s: %w", f.Name, err)
	}
	if strings.TrimSpace(emb.TaskID) == "" {
		if emb.Message != "" {
			return result, fmt.Errorf("start embeddings for %s: %w: %s", f.Name, ErrNoTask, emb.Message)
		}
		return result, fmt.Errorf("start embeddings for %s: %w", f.Name, ErrNoTask)
	}
	result.TaskID = emb.TaskID

	logging.WithFields("info", "document uploaded", logging.Fields{
		"file":    f.Name,
		"file_id": up.FileID,
		"task_id": emb.TaskID,
		"size":    f.Size,
	})

	w := i.poller.WatchNamed(ctx, emb.TaskID, f.Name)
	defer w.Cancel()
	final, err := w.Wait(func(s tasks.Snapshot) {
		stage := StageProcessing
		if s.Status == tasks.StatusCompleted {
			stage = StageDone
		}
		snap := s
		report(Progress{Stage: stage, FileID: up.FileID, TaskID: emb.TaskID, Snapshot: &snap})
	})
	result.Final = final
	if err != nil {
		return result, err
	}
	return result, nil
}

// IngestPath opens a local file and ingests it under its base name.
func (i *Ingester) IngestPath(ctx context.Context, path string, onProgress func(Progress)) (Result, error) {
	file, info, err := Open(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	return i.Ingest(ctx, File{
		Name:    info.Name,
		Size:    info.Size,
		Content: file,
	}, onProgress)
}

// Info describes a local file before upload.
type Info struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// Open opens path for reading and describes it. Directories are rejected.
func Open(path string) (*os.File, Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, Info{}, err
	}
	if st.IsDir() {
		return nil, Info{}, fmt.Errorf("%s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	return f, Info{
		Path: path,
		Name: filepath.Base(path),
		Size: st.Size(),
	}, nil
}

// Inspect validates a local file without uploading it.
func Inspect(path string, maxSize int64) (Info, error) {
	f, info, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	info.ContentType = DetectType(info.Name, head[:n])
	return info, Validate(info.Name, info.ContentType, info.Size, maxSize)
}
