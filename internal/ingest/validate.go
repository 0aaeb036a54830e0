// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jeranaias/arag-cli/internal/util"
)

// MaxFileSize is the largest document accepted for upload.
const MaxFileSize int64 = 50 * 1024 * 1024

// Accepted document types.
const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// AllowedTypes lists every accepted MIME type.
var AllowedTypes = []string{TypePDF, TypeDOCX, TypeDOC}

var (
	// ErrInvalidType means the document is not a PDF, DOC or DOCX.
	ErrInvalidType = errors.New("unsupported file type")

	// ErrTooLarge means the document exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
)

// ValidationError describes a document rejected before upload.
type ValidationError struct {
	File   string
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	msg := e.Reason.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// extensionTypes covers what the stdlib table lacks.
var extensionTypes = map[string]string{
	".pdf":  TypePDF,
	".doc":  TypeDOC,
	".docx": TypeDOCX,
}

// DetectType returns the MIME type of a document from its name, falling back
// to sniffing head (up to 512 bytes of content) when the extension is unknown.
func DetectType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return baseType(t)
		}
	}
	if len(head) > 0 {
		return baseType(http.DetectContentType(head))
	}
	return "application/octet-stream"
}

// IsAllowed reports whether contentType is an accepted document type.
func IsAllowed(contentType string) bool {
	ct := baseType(contentType)
	for _, t := range AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Validate checks type and size against the limit. maxSize <= 0 means MaxFileSize.
func Validate(name, contentType string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if !IsAllowed(contentType) {
		return &ValidationError{
			File:   name,
			Reason: ErrInvalidType,
			Detail: fmt.Sprintf("%s; PDF, DOC and DOCX are supported", displayType(contentType)),
		}
	}
	if size > maxSize {
		return &ValidationError{
			File:   name,
			Reason: ErrTooLarge,
			Detail: fmt.Sprintf("%s; maximum is %s", FormatFileSize(size), FormatFileSize(maxSize)),
		}
	}
	return nil
}

// FormatFileSize renders a byte count for messages, e.g. "50 MB".
func FormatFileSize(bytes int64) string {
	return util.FormatFileSize(bytes)
}

func baseType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.TrimSpace(strings.ToLower(t))
}

func displayType(t string) string {
	if t == "" {
		return "unknown type"
	}
	return baseType(t)
}
