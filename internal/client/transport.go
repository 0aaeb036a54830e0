// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/arag-cli/internal/logging"
)

// loggingRoundTripper logs every outbound call and tags it with a request id.
// Only method, path, status and duration are logged; bodies may contain
// document contents and are never written.
type loggingRoundTripper struct {
	inner http.RoundTripper
}

func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	requestID := req.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
		req = req.Clone(req.Context())
		req.Header.Set("X-Request-Id", requestID)
	}

	resp, err := l.inner.RoundTrip(req)
	duration := time.Since(start)

	fields := logging.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"duration":   duration.String(),
		"request_id": requestID,
	}
	if err != nil {
		fields["error"] = err.Error()
		logging.WithFields("warn", "request failed", fields)
		return nil, err
	}

	fields["status"] = resp.StatusCode
	logging.WithFields("debug", "request completed", fields)
	return resp, nil
}

// newHTTPClient builds the pooled client used when none is supplied.
// No client-level timeout is set: each call is bounded by its context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &loggingRoundTripper{
			inner: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}
