// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/arag-cli/internal/apierr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c := New("")
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), DefaultBaseURL)
	}

	c = New("http://example.test/")
	if c.BaseURL() != "http://example.test" {
		t.Errorf("trailing slash not trimmed: %q", c.BaseURL())
	}
}

func TestQuery_SendsJSON(t *testing.T) {
	var got QueryRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/query" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"query":"q","answer":"forty-two","rephrased_query":null,"confidence":0.9,"iterations":1,"sources_used":3}`)
	})

	resp, err := c.Query(context.Background(), QueryRequest{Query: "q", Domain: "DefaultDocuments", MaxIterations: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got.Domain != "DefaultDocuments" || got.MaxIterations != 2 {
		t.Errorf("request body = %+v", got)
	}
	if resp.Answer != "forty-two" || resp.SourcesUsed == nil || *resp.SourcesUsed != 3 || resp.RephrasedQuery != nil {
		t.Errorf("response = %+v", resp)
	}
	if resp.Confidence == nil || *resp.Confidence != 0.9 {
		t.Errorf("confidence = %v", resp.Confidence)
	}
}

func TestQuery_OmittedMetadataStaysNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"query":"q","answer":"ok","iterations":1}`)
	})

	resp, err := c.Query(context.Background(), QueryRequest{Query: "q", Domain: "DefaultDocuments", MaxIterations: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Confidence != nil || resp.SourcesUsed != nil || resp.RephrasedQuery != nil {
		t.Errorf("omitted fields decoded as %v %v %v", resp.Confidence, resp.SourcesUsed, resp.RephrasedQuery)
	}
}

func TestExecute_ContentTypeWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		io.WriteString(w, `{"status":"healthy","timestamp":"now"}`)
	})

	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q", resp.Status)
	}
}

func TestExecute_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantDetail  string
	}{
		{"json detail", 404, "application/json", `{"detail":"Task not found"}`, "Task not found"},
		{"json message", 400, "application/json", `{"message":"bad input"}`, "bad input"},
		{"plain text", 500, "text/plain", "boom", "boom"},
		{"html page", 502, "text/html", "<!DOCTYPE html><html><body>Bad Gateway</body></html>", apierr.ServiceUnavailable},
		{"html without content type", 503, "", "<html>down</html>", apierr.ServiceUnavailable},
		{"invalid json", 500, "application/json", "{not json", apierr.ServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.TaskStatus(context.Background(), "t1")
			apiErr, ok := apierr.As(err)
			if !ok {
				t.Fatalf("error %v is not an ApiError", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", apiErr.Detail, tt.wantDetail)
			}
		})
	}
}

func TestExecute_MalformedSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json at all")
	})

	_, err := c.Query(context.Background(), QueryRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected error for malformed success body")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Status != http.StatusOK {
		t.Errorf("err = %v, want ApiError with status 200", err)
	}
}

func TestExecute_EmptySuccessBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if _, err := c.Health(context.Background()); err == nil {
		t.Error("expected error for empty success body")
	}
	if err := c.Execute(context.Background(), http.MethodGet, "/health", nil, nil); err != nil {
		t.Errorf("Execute with nil out should ignore body, got %v", err)
	}
}

func TestExecute_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(url)
	_, err := c.Health(context.Background())
	if !apierr.IsNetwork(err) {
		t.Fatalf("IsNetwork(%v) = false", err)
	}
	if apierr.Detail(err) != apierr.NetworkError {
		t.Errorf("Detail = %q, want %q", apierr.Detail(err), apierr.NetworkError)
	}
}

func TestExecute_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c.WithTimeout(50 * time.Millisecond)

	_, err := c.Health(context.Background())
	if !apierr.IsNetwork(err) {
		t.Errorf("timeout should surface as network error, got %v", err)
	}
}

func TestUploadDocument_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if name := r.FormValue("document_name"); name != "contract.pdf" {
			t.Errorf("document_name = %q", name)
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "%PDF-1.4 body" {
			t.Errorf("file content = %q", data)
		}
		if ct := header.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("part Content-Type = %q", ct)
		}
		io.WriteString(w, `{"file_id":"f1","filename":"contract.pdf","status":"uploaded","message":"ok"}`)
	})

	resp, err := c.UploadDocument(context.Background(), "contract.pdf", "application/pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if resp.FileID != "f1" {
		t.Errorf("FileID = %q", resp.FileID)
	}
}

func TestUploadDocument_HTMLError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, "<html><body>413 Request Entity Too Large</body></html>")
	})

	_, err := c.UploadDocument(context.Background(), "a.pdf", "application/pdf", strings.NewReader("x"))
	if apierr.Detail(err) != apierr.ServiceUnavailable {
		t.Errorf("Detail = %q, want sentinel", apierr.Detail(err))
	}
	if !apierr.IsStatus(err, http.StatusRequestEntityTooLarge) {
		t.Errorf("status not preserved: %v", err)
	}
}

// failingReader errors on the first read.
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestRequestBuildFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `{}`)
	})

	diskErr := errors.New("input/output error")
	_, err := c.UploadDocument(context.Background(), "a.pdf", "application/pdf", failingReader{err: diskErr})
	apiErr, ok := apierr.As(err)
	if !ok {
		t.Fatalf("upload read failure is %T, want *apierr.ApiError", err)
	}
	if apiErr.Status != 0 || !errors.Is(err, diskErr) {
		t.Errorf("upload read failure = %v (status %d)", err, apiErr.Status)
	}

	err = c.Execute(context.Background(), http.MethodPost, "/query", map[string]any{"bad": make(chan int)}, nil)
	if _, ok := apierr.As(err); !ok {
		t.Fatalf("marshal failure is %T, want *apierr.ApiError", err)
	}
	if apierr.Detail(err) != apierr.NetworkError {
		t.Errorf("Detail = %q", apierr.Detail(err))
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("server was called %d times", n)
	}
}

func TestListDocuments_Pagination(t *testing.T) {
	var gotPage, gotSize string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		gotSize = r.URL.Query().Get("page_size")
		io.WriteString(w, `{"files":[{"file_id":"f1","filename":"a.pdf","size_bytes":1024}],"total":1,"page":1,"page_size":10}`)
	})

	resp, err := c.ListDocuments(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if gotPage != "1" || gotSize != "10" {
		t.Errorf("page=%q page_size=%q, want defaults", gotPage, gotSize)
	}
	if len(resp.Files) != 1 || resp.Files[0].SizeBytes != 1024 {
		t.Errorf("files = %+v", resp.Files)
	}

	if _, err := c.ListDocuments(context.Background(), 3, 25); err != nil {
		t.Fatal(err)
	}
	if gotPage != "3" || gotSize != "25" {
		t.Errorf("page=%q page_size=%q, want 3/25", gotPage, gotSize)
	}
}

func TestEndpoints_EscapeIDs(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		io.WriteString(w, `{"file_id":"a/b","status":"deleted","message":"ok"}`)
	})

	if _, err := c.DeleteDocument(context.Background(), "a/b"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s", gotMethod)
	}
	if gotPath != "/documents/a%2Fb" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestGenerateEmbeddings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embeddings/f1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"task_id":"t1","file_id":"f1","status":"processing","message":"started"}`)
	})

	resp, err := c.GenerateEmbeddings(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.TaskID != "t1" {
		t.Errorf("TaskID = %q", resp.TaskID)
	}
}

type recordingTransport struct {
	requests []*http.Request
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.requests = append(rt.requests, r)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"status":"healthy","timestamp":"2025-01-01T00:00:00Z"}`)),
		Request:    r,
	}, nil
}

func TestWithHTTPClient_CustomTransport(t *testing.T) {
	rt := &recordingTransport{}
	c := New("http://backend.test").
		WithHTTPClient(&http.Client{Transport: rt}).
		WithUserAgent("arag/test")

	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("transport saw %d requests, want 1", len(rt.requests))
	}
	r := rt.requests[0]
	if r.URL.String() != "http://backend.test/health" {
		t.Errorf("URL = %q", r.URL)
	}
	if ua := r.Header.Get("User-Agent"); ua != "arag/test" {
		t.Errorf("User-Agent = %q, want arag/test", ua)
	}
	if r.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", r.Header.Get("Accept"))
	}
}
