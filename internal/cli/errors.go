// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, display and exit codes for the arag CLI.
//
// Command handlers always return errors; the caller decides how to
// display them and which exit code to use.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/arag-cli/internal/apierr"
	"github.com/jeranaias/arag-cli/internal/chat"
	"github.com/jeranaias/arag-cli/internal/config"
	"github.com/jeranaias/arag-cli/internal/ingest"
	"github.com/jeranaias/arag-cli/internal/storage"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitServerError   = 4 // the backend answered with an error
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitCanceled      = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "docs"
	Action  string // e.g. "upload"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a missing local resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// reportedError marks a failure whose message the command already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported wraps err so DisplayError does not print it a second time.
// Exit codes still follow the wrapped error.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrUnknownSubcommand reports a subcommand the command does not have.
func ErrUnknownSubcommand(command, sub string, valid []string) error {
	example := fmt.Sprintf("arag %s %v", command, valid)
	if s := Suggest(sub, valid); s != "" {
		example = fmt.Sprintf("did you mean: arag %s %s", command, s)
	}
	return &ValidationError{
		Field:   command + " subcommand",
		Value:   sub,
		Reason:  "unknown subcommand",
		Example: example,
	}
}

// ErrUnsupportedFormat creates an error for unsupported formats.
func ErrUnsupportedFormat(format string, supported []string) error {
	return &ValidationError{
		Field:   "format",
		Value:   format,
		Reason:  "unsupported format",
		Example: fmt.Sprintf("supported formats: %v", supported),
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, command, err)
		return
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), UserMessage(err))
}

// DisplayErrorJSON writes err as a JSON error response with a classification.
func DisplayErrorJSON(w io.Writer, command string, err error) {
	resp := NewJSONErrorResponse(command, err)
	resp.ErrorType = errorType(err)
	if apiErr, ok := apierr.As(err); ok {
		status := apiErr.Status
		resp.Status = &status
	}
	_ = resp.Write(w)
}

// UserMessage returns the text shown for err. Backend failures show their
// sanitized detail, with the status when there was one.
func UserMessage(err error) string {
	if apiErr, ok := apierr.As(err); ok {
		detail := apierr.Sanitize(err)
		if apiErr.Status == 0 {
			return detail
		}
		return fmt.Sprintf("%s (HTTP %d)", detail, apiErr.Status)
	}
	return err.Error()
}

func errorType(err error) string {
	var (
		validationErr *ValidationError
		ingestErr     *ingest.ValidationError
		notFoundErr   *NotFoundError
		failedErr     *tasks.TaskFailedError
		cmdErr        *CommandError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &ingestErr):
		return "validation_error"
	case errors.As(err, &notFoundErr), errors.Is(err, storage.ErrSessionNotFound):
		return "not_found_error"
	case apierr.IsNetwork(err):
		return "network_error"
	case errors.As(err, &failedErr):
		return "task_failed"
	case errors.Is(err, tasks.ErrTimedOut):
		return "timeout_error"
	case errors.Is(err, tasks.ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, ErrNotConfirmed):
		return "canceled"
	}
	if _, ok := apierr.As(err); ok || errors.Is(err, ingest.ErrNoTask) {
		return "api_error"
	}
	if errors.As(err, &cmdErr) {
		return "command_error"
	}
	return "generic_error"
}

// =============================================================================
// EXIT CODES
// =============================================================================

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validationErr *ValidationError
		ingestErr     *ingest.ValidationError
		notFoundErr   *NotFoundError
		configErrs    config.ValidateErrors
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &ingestErr),
		errors.Is(err, chat.ErrEmptyMessage):
		return ExitUsageError
	case errors.As(err, &configErrs):
		return ExitConfigError
	case errors.As(err, &notFoundErr),
		errors.Is(err, storage.ErrSessionNotFound),
		apierr.IsStatus(err, http.StatusNotFound):
		return ExitNotFoundError
	case errors.Is(err, tasks.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, tasks.ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, ErrNotConfirmed):
		return ExitCanceled
	case apierr.IsNetwork(err):
		return ExitNetworkError
	}
	if _, ok := apierr.As(err); ok || errors.Is(err, ingest.ErrNoTask) {
		return ExitServerError
	}
	return ExitGeneralError
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
