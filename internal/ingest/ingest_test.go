// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arag-cli/internal/apierr"
	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

// =============================================================================
// VALIDATION
// =============================================================================

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"report.pdf", nil, TypePDF},
		{"REPORT.PDF", nil, TypePDF},
		{"memo.doc", nil, TypeDOC},
		{"memo.docx", nil, TypeDOCX},
		{"page.html", nil, "text/html"},
		{"scan", []byte("%PDF-1.7\n..."), TypePDF},
		{"blob", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.name, tt.head))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("a.pdf", TypePDF, 1024, 0))
	assert.NoError(t, Validate("a.docx", TypeDOCX, MaxFileSize, 0), "exactly the limit is fine")
	assert.NoError(t, Validate("a.doc", TypeDOC+"; charset=binary", 10, 0))

	err := Validate("notes.txt", "text/plain", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidType)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "notes.txt", verr.File)
	assert.Contains(t, err.Error(), "text/plain")

	err = Validate("huge.pdf", TypePDF, MaxFileSize+1, 0)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "50 MB")

	err = Validate("small.pdf", TypePDF, 2048, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

// =============================================================================
// PIPELINE
// =============================================================================

type fakeAPI struct {
	mu          sync.Mutex
	uploads     []string
	body        string
	contentType string
	uploadErr   error
	embedErr    error
	noTask      bool
}

func (f *fakeAPI) UploadDocument(ctx context.Context, name, contentType string, content io.Reader) (*client.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	data, _ := io.ReadAll(content)
	f.body = string(data)
	f.contentType = contentType
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &client.UploadResponse{FileID: "file-1", Filename: name, Status: "uploaded"}, nil
}

func (f *fakeAPI) GenerateEmbeddings(ctx context.Context, fileID string) (*client.EmbeddingResponse, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.noTask {
		return &client.EmbeddingResponse{FileID: fileID, Status: "queued", Message: "embedding queue full"}, nil
	}
	return &client.EmbeddingResponse{TaskID: "task-1", FileID: fileID, Status: "processing"}, nil
}

type scriptFetcher struct {
	mu       sync.Mutex
	statuses []string
	message  string
	calls    int
}

func (s *scriptFetcher) TaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	return &client.TaskStatusResponse{
		TaskID:          taskID,
		Status:          s.statuses[i],
		Message:         s.message,
		ChunksProcessed: s.calls,
		TotalChunks:     len(s.statuses),
	}, nil
}

func newIngester(api API, statuses ...string) (*Ingester, *scriptFetcher) {
	f := &scriptFetcher{statuses: statuses}
	p := tasks.NewPoller(f, tasks.Options{Interval: time.Millisecond})
	return New(api, p, 0), f
}

func TestIngest_HappyPath(t *testing.T) {
	api := &fakeAPI{}
	ing, fetcher := newIngester(api, "processing", "processing", "completed")

	var stages []Stage
	res, err := ing.Ingest(context.Background(), File{
		Name:    "contract.pdf",
		Size:    12,
		Content: strings.NewReader("%PDF-1.4 abc"),
	}, func(p Progress) {
		stages = append(stages, p.Stage)
		assert.Equal(t, "contract.pdf", p.File)
	})

	require.NoError(t, err)
	assert.Equal(t, "file-1", res.Upload.FileID)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, tasks.StatusCompleted, res.Final.Status)
	assert.Equal(t, []Stage{
		StageValidating, StageUploading, StageEmbedding,
		StageProcessing, StageProcessing, StageDone,
	}, stages)
	assert.Equal(t, "%PDF-1.4 abc", api.body, "sniffing must not consume content")
	assert.Equal(t, TypePDF, api.contentType)
	assert.Equal(t, 3, fetcher.calls)
}

func TestIngest_ValidationFailsBeforeNetwork(t *testing.T) {
	api := &fakeAPI{}
	ing, fetcher := newIngester(api, "completed")

	_, err := ing.Ingest(context.Background(), File{Name: "notes.txt", Size: 5, Content: strings.NewReader("hello")}, nil)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = ing.Ingest(context.Background(), File{Name: "big.pdf", Size: MaxFileSize + 1, Content: strings.NewReader("%PDF")}, nil)
	assert.ErrorIs(t, err, ErrTooLarge)

	assert.Empty(t, api.uploads)
	assert.Zero(t, fetcher.calls)
}

func TestIngest_UploadErrorShortCircuits(t *testing.T) {
	api := &fakeAPI{uploadErr: &apierr.ApiError{Detail: "Bucket unavailable", Status: 503}}
	ing, fetcher := newIngester(api, "completed")

	_, err := ing.Ingest(context.Background(), File{Name: "a.pdf", Size: 4, ContentType: TypePDF, Content: strings.NewReader("%PDF")}, nil)

	assert.True(t, apierr.IsStatus(err, 503))
	assert.Equal(t, "Bucket unavailable", apierr.Detail(err))
	assert.Zero(t, fetcher.calls)
}

func TestIngest_EmbeddingError(t *testing.T) {
	api := &fakeAPI{embedErr: &apierr.ApiError{Detail: "File not found", Status: 404}}
	ing, fetcher := newIngester(api, "completed")

	res, err := ing.Ingest(context.Background(), File{Name: "a.pdf", Size: 4, Content: strings.NewReader("%PDF")}, nil)

	assert.True(t, apierr.IsStatus(err, 404))
	assert.Equal(t, "file-1", res.Upload.FileID)
	assert.Zero(t, fetcher.calls)
}

func TestIngest_MissingTaskIDIsNotPolled(t *testing.T) {
	ing, fetcher := newIngester(&fakeAPI{noTask: true}, "completed")

	var stages []Stage
	res, err := ing.Ingest(context.Background(), File{Name: "a.pdf", Size: 4, Content: strings.NewReader("%PDF")}, func(p Progress) {
		stages = append(stages, p.Stage)
	})

	require.ErrorIs(t, err, ErrNoTask)
	assert.Contains(t, err.Error(), "embedding queue full")
	assert.Equal(t, "file-1", res.Upload.FileID)
	assert.Empty(t, res.TaskID)
	assert.Zero(t, fetcher.calls)
	assert.NotContains(t, stages, StageProcessing)
}

func TestIngest_TaskFailed(t *testing.T) {
	ing, fetcher := newIngester(&fakeAPI{}, "processing", "failed")
	fetcher.message = "parse error"

	res, err := ing.Ingest(context.Background(), File{Name: "a.docx", Size: 4, Content: strings.NewReader("PK..")}, nil)

	var failed *tasks.TaskFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "parse error", failed.Message)
	assert.Equal(t, tasks.StatusFailed, res.Final.Status)
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.docx")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04docx"), 0600))

	api := &fakeAPI{}
	ing, _ := newIngester(api, "completed")

	res, err := ing.IngestPath(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, res.Final.Status)
	assert.Equal(t, []string{"policy.docx"}, api.uploads)
	assert.Equal(t, TypeDOCX, api.contentType)

	_, err = ing.IngestPath(context.Background(), dir, nil)
	assert.Error(t, err)

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "missing.pdf"), nil)
	assert.True(t, os.IsNotExist(errors.Unwrap(err)) || os.IsNotExist(err))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.5 body"), 0600))

	info, err := Inspect(path, 0)
	require.NoError(t, err)
	assert.Equal(t, TypePDF, info.ContentType)
	assert.Equal(t, int64(13), info.Size)
}

func TestIngest_AgainstServer(t *testing.T) {
	var polls int
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		fmt.Fprintf(w, `{"file_id":"f-9","filename":%q,"status":"uploaded","message":"ok"}`, r.FormValue("document_name"))
	})
	mux.HandleFunc("/embeddings/f-9", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"task_id":"t-9","file_id":"f-9","status":"processing","message":"started"}`)
	})
	mux.HandleFunc("/tasks/t-9", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		status := "processing"
		if n > 1 {
			status = "completed"
		}
		fmt.Fprintf(w, `{"task_id":"t-9","status":%q,"file_id":"f-9","message":"","chunks_processed":%d,"total_chunks":2,"created_at":"2025-01-01T00:00:00Z"}`, status, n)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := client.New(server.URL)
	ing := New(c, tasks.NewPoller(c, tasks.Options{Interval: time.Millisecond}), 0)

	res, err := ing.Ingest(context.Background(), File{Name: "x.pdf", Size: 8, Content: strings.NewReader("%PDF-1.4")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x.pdf", res.Upload.Filename)
	assert.Equal(t, 100, res.Final.ProgressPercent())
}
