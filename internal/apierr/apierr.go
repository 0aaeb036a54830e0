// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierr normalizes failed backend exchanges into a single error type.
//
// Every failure the transport observes, whether a refused connection, a JSON
// rejection or an HTML page served by a proxy, is reduced to an ApiError with
// a human-readable Detail and the numeric Status (0 when no response arrived).
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// ServiceUnavailable replaces any markup or unreadable error body.
	ServiceUnavailable = "Service is unavailable. Please check your connection."

	// NetworkError is the detail used when no response reached the client.
	NetworkError = "network error"

	// UnknownError is shown for failures that carry no detail at all.
	UnknownError = "Unknown error"
)

// ApiError is the normalized failure of a backend call.
type ApiError struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`

	// cause is the underlying transport error for Status 0.
	cause error
}

// Error implements the error interface.
func (e *ApiError) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.Status)
}

// Unwrap exposes the transport error behind a network failure.
func (e *ApiError) Unwrap() error {
	return e.cause
}

// errorBody is the subset of backend error payloads we understand.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message json.RawMessage `json:"message"`
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// FromNetwork builds the status-0 error for an exchange that never got a response.
func FromNetwork(err error) *ApiError {
	return &ApiError{Detail: NetworkError, Status: 0, cause: err}
}

// FromUnreadable builds the error for a response whose body could not be read.
func FromUnreadable(status int, err error) *ApiError {
	return &ApiError{Detail: ServiceUnavailable, Status: status, cause: err}
}

// FromResponse classifies a non-success response body.
//
// JSON bodies contribute their "detail" (or "message") field. Plain text is
// used verbatim unless it looks like an HTML document, which collapses to the
// ServiceUnavailable sentinel. Empty bodies fall back to the status text.
func FromResponse(status int, contentType string, body []byte) *ApiError {
	text := strings.TrimSpace(string(body))

	if looksJSON(contentType, text) {
		if detail, ok := detailFromJSON(body); ok {
			return &ApiError{Detail: guard(detail), Status: status}
		}
		if strings.Contains(strings.ToLower(contentType), "json") {
			// Declared JSON that we could not use.
			if !json.Valid(body) {
				return &ApiError{Detail: ServiceUnavailable, Status: status}
			}
			return &ApiError{Detail: statusText(status), Status: status}
		}
	}

	if IsHTML(text) {
		return &ApiError{Detail: ServiceUnavailable, Status: status}
	}
	if text == "" {
		return &ApiError{Detail: statusText(status), Status: status}
	}
	return &ApiError{Detail: text, Status: status}
}

// FromMalformed builds the error for a success response that did not decode.
func FromMalformed(status int, err error) *ApiError {
	return &ApiError{Detail: ServiceUnavailable, Status: status, cause: err}
}

func looksJSON(contentType, text string) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	return strings.HasPrefix(text, "{")
}

// detailFromJSON extracts detail, then message, from a JSON object.
// FastAPI validation errors carry a list in "detail"; it is kept as JSON text.
func detailFromJSON(body []byte) (string, bool) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", false
	}
	for _, raw := range []json.RawMessage{eb.Detail, eb.Message} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
			continue
		}
		return string(raw), true
	}
	return "", false
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return UnknownError
}

// =============================================================================
// HTML GUARD
// =============================================================================

// IsHTML reports whether text looks like an HTML document rather than an API
// message. The check is case-insensitive and ignores a leading BOM, surrounding
// whitespace and compatibility-equivalent characters.
func IsHTML(text string) bool {
	t := norm.NFKC.String(text)
	t = strings.TrimPrefix(t, "\ufeff")
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.HasPrefix(t, "<!doctype html") || strings.Contains(t, "<html")
}

// guard collapses markup that arrived inside an otherwise structured body.
func guard(detail string) string {
	if IsHTML(detail) {
		return ServiceUnavailable
	}
	return detail
}

// =============================================================================
// INSPECTION
// =============================================================================

// As returns the ApiError in err's chain, if any.
func As(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetwork reports whether err is a failure where no response was received.
func IsNetwork(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Status == 0
}

// IsStatus reports whether err is an ApiError with the given HTTP status.
func IsStatus(err error, status int) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Status == status
}

// Detail returns the user-facing detail of any error.
// Non-ApiError values contribute their Error() text.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := As(err); ok {
		return apiErr.Detail
	}
	return err.Error()
}

// Sanitize returns the text that may be shown to a user for err.
// The HTML guard is applied again here since err may not have come
// through FromResponse.
func Sanitize(err error) string {
	detail := strings.TrimSpace(Detail(err))
	if detail == "" {
		return UnknownError
	}
	return guard(detail)
}
