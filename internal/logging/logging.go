// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the structured logger shared by every arag package.
//
// Records are JSON lines written to a log file (default ~/.arag/arag.log) so
// that terminal output stays clean while chatting. An empty file path sends
// records to stderr instead.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gookit/slog"
	"github.com/gookit/slog/handler"
)

// Logger is the minimal logging surface used across the module.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Fields holds structured fields attached to a single record.
type Fields map[string]any

var (
	mu     sync.RWMutex
	log    Logger = New("info", io.Discard)
	closer io.Closer
)

// Log returns the process logger. Before Init it discards everything.
func Log() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Init installs a logger at the given level writing to file.
// The parent directory is created when missing.
func Init(level, file string) error {
	var out io.Writer = os.Stderr
	var c io.Closer

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out, c = f, f
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer.Close()
	}
	log, closer = New(level, out), c
	return nil
}

// SetLogger replaces the process logger. Intended for tests.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Close flushes and closes the log file opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	log = New("info", io.Discard)
	return err
}

// New builds a gookit/slog logger emitting JSON records at or above level.
func New(level string, out io.Writer) Logger {
	logLevel := slog.LevelByName(strings.ToLower(level))

	var levels slog.Levels
	for _, lv := range slog.AllLevels {
		if lv <= logLevel {
			levels = append(levels, lv)
		}
	}

	h := handler.NewIOWriterHandler(out, levels)
	formatter := slog.NewJSONFormatter(func(f *slog.JSONFormatter) {
		f.Fields = []string{
			slog.FieldKeyDatetime,
			slog.FieldKeyLevel,
			slog.FieldKeyMessage,
		}
		f.Aliases = slog.StringMap{
			slog.FieldKeyDatetime: "datetime",
			slog.FieldKeyLevel:    "level",
			slog.FieldKeyMessage:  "message",
		}
		f.TimeFormat = "2006-01-02T15:04:05"
	})
	h.SetFormatter(formatter)

	return slog.NewWithHandlers(h)
}

// WithFields logs msg at level with top-level structured fields.
// Loggers that are not gookit loggers get the fields appended to the message.
func WithFields(level, msg string, fields Fields) {
	l := Log()
	if lg, ok := l.(*slog.Logger); ok {
		rec := lg.WithFields(slog.M(fields))
		switch level {
		case "debug":
			rec.Debug(msg)
		case "warn":
			rec.Warn(msg)
		case "error":
			rec.Error(msg)
		default:
			rec.Info(msg)
		}
		return
	}

	line := msg + " " + formatFields(fields)
	switch level {
	case "debug":
		l.Debug(line)
	case "warn":
		l.Warn(line)
	case "error":
		l.Error(line)
	default:
		l.Info(line)
	}
}

func formatFields(fields Fields) string {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}
