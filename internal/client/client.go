// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/arag-cli/internal/apierr"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is where a locally running backend listens.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds each non-upload request.
	DefaultTimeout = 60 * time.Second

	// DefaultUploadTimeout bounds a multipart upload.
	DefaultUploadTimeout = 5 * time.Minute

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024
)

// Client talks to the document-QA backend.
//
// A Client holds no per-call state: no cookies, sessions or retry counters.
// It is safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	userAgent     string
}

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		httpClient:    newHTTPClient(),
		timeout:       DefaultTimeout,
		uploadTimeout: DefaultUploadTimeout,
		userAgent:     "arag/0.1.0",
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// WithUploadTimeout sets the timeout for multipart uploads. Zero disables it.
func (c *Client) WithUploadTimeout(timeout time.Duration) *Client {
	c.uploadTimeout = timeout
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUESTS
// =============================================================================

// Execute sends a JSON request and decodes the JSON response into out.
//
// body is marshaled when non-nil. out may be nil when the payload is not
// needed. Every failure is returned as *apierr.ApiError.
func (c *Client) Execute(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apierr.FromNetwork(fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apierr.FromNetwork(fmt.Errorf("failed to create request: %w", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

// FormFile is a file part of a multipart upload.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Content     io.Reader
}

// Form is the body of a multipart upload.
type Form struct {
	Fields map[string]string
	Files  []FormFile
}

// Upload sends form as multipart/form-data and decodes the JSON response.
// Errors follow the same normalization as Execute; a request that could not
// be built never got a response and carries status 0.
func (c *Client) Upload(ctx context.Context, path string, form Form, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range form.Files {
		part, err := createFilePart(w, f)
		if err != nil {
			return apierr.FromNetwork(fmt.Errorf("failed to create form file: %w", err))
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return apierr.FromNetwork(fmt.Errorf("failed to read %s: %w", f.Filename, err))
		}
	}
	for name, value := range form.Fields {
		if err := w.WriteField(name, value); err != nil {
			return apierr.FromNetwork(fmt.Errorf("failed to write form field: %w", err))
		}
	}
	if err := w.Close(); err != nil {
		return apierr.FromNetwork(fmt.Errorf("failed to finish form: %w", err))
	}

	ctx, cancel := withTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return apierr.FromNetwork(fmt.Errorf("failed to create request: %w", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, out)
}

func createFilePart(w *multipart.Writer, f FormFile) (io.Writer, error) {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(f.Field), escapeQuotes(f.Filename)))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// do executes req and routes the outcome through the error normalizer.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.FromNetwork(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return apierr.FromUnreadable(resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierr.FromResponse(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return apierr.FromMalformed(resp.StatusCode, fmt.Errorf("empty response body"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierr.FromMalformed(resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// endpoint joins escaped path segments onto a root path.
func endpoint(root string, segments ...string) string {
	p := root
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}
