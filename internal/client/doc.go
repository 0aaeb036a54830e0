// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP transport for the document-QA backend.
//
// The transport is stateless: each call builds its own request, applies its
// own timeout and returns either a decoded payload or an *apierr.ApiError.
// It never retries, since neither /query nor /uploads is idempotent.
//
// # Key Types
//
//   - Client: JSON and multipart requests against one base URL
//   - QueryRequest / QueryResponse: agent question and answer
//   - TaskStatusResponse: background task projection used by the poller
//
// # Usage
//
//	c := client.New("http://localhost:8000")
//	resp, err := c.Query(ctx, client.QueryRequest{
//	    Query:         "What is the notice period?",
//	    Domain:        "DefaultDocuments",
//	    MaxIterations: 2,
//	})
//	if err != nil {
//	    fmt.Println(apierr.Sanitize(err))
//	}
package client
