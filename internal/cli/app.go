// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of configuration, transport, storage and orchestrators
// shared by every command.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/arag-cli/internal/chat"
	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/config"
	"github.com/jeranaias/arag-cli/internal/ingest"
	"github.com/jeranaias/arag-cli/internal/logging"
	"github.com/jeranaias/arag-cli/internal/storage"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

// taskHistory bounds the finished tasks kept for /tasks.
const taskHistory = 20

// App holds everything a command needs.
type App struct {
	Args   Args
	Config *config.Config

	Client   *client.Client
	Sessions *storage.Manager
	Chat     *chat.Orchestrator
	Poller   *tasks.Poller
	Tasks    *tasks.Registry
	Ingester *ingest.Ingester
	Renderer *Renderer

	Out io.Writer
	Err io.Writer
	In  io.Reader

	// Interactive is true when progress views and prompts may be used.
	Interactive bool
}

// LoadConfig loads the configuration and applies the global flags.
// A broken config file is reported on errOut and defaults are used.
func LoadConfig(args Args, errOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if cfg == nil {
		return nil, err
	}
	if err != nil && !args.Quiet {
		fmt.Fprintf(errOut, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
	}
	if err := applyFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, args Args) error {
	if args.BaseURL != "" {
		cfg.Server.BaseURL = args.BaseURL
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	if args.Ephemeral {
		cfg.Storage.Backend = storage.KindMemory
	}
	cfg.SetDefaults()
	return cfg.Validate()
}

// NewApp loads configuration, starts logging and opens storage.
func NewApp(args Args) (*App, error) {
	cfg, err := LoadConfig(args, os.Stderr)
	if err != nil {
		return nil, err
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log.Level, logPath); err != nil {
		// Logging is not worth failing a command over.
		fmt.Fprintf(os.Stderr, "%s %v\n", WarningStyle.Render("[WARN]"), err)
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(cfg.Storage.Backend, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	app := NewAppWithBackend(cfg, args, backend)
	app.Interactive = IsTTY() && IsStdoutTTY() && !args.JSON
	app.Renderer = NewRenderer(cfg.UI.Markdown && IsStdoutTTY() && !args.JSON, cfg.UI.Theme, GetTerminalWidth())
	return app, nil
}

// NewAppWithBackend wires an App around an already opened backend.
// Output goes to stdout/stderr; tests replace Out, Err and In.
func NewAppWithBackend(cfg *config.Config, args Args, backend storage.Backend) *App {
	c := client.New(cfg.Server.BaseURL).
		WithTimeout(cfg.Server.Timeout.Duration).
		WithUploadTimeout(cfg.Server.UploadTimeout.Duration).
		WithUserAgent("arag/" + Version)

	registry := tasks.NewRegistry(taskHistory)
	poller := tasks.NewPoller(c, tasks.Options{
		Interval:    cfg.Tasks.PollInterval.Duration,
		MaxAttempts: cfg.Tasks.MaxAttempts,
		MaxDuration: cfg.Tasks.MaxDuration.Duration,
		Registry:    registry,
	})

	sessions := storage.NewManager(backend)
	return &App{
		Args:     args,
		Config:   cfg,
		Client:   c,
		Sessions: sessions,
		Chat: chat.New(c, sessions, chat.Options{
			Domain:        cfg.Query.Domain,
			MaxIterations: cfg.Query.MaxIterations,
		}),
		Poller:   poller,
		Tasks:    registry,
		Ingester: ingest.New(c, poller, cfg.MaxUploadBytes()),
		Out:      os.Stdout,
		Err:      os.Stderr,
		In:       os.Stdin,
	}
}

// NewConfigApp wires an App holding only configuration and stdio, for
// commands that must work while the backend or storage is unusable. An
// invalid config file falls back to defaults so it can be repaired.
func NewConfigApp(args Args) *App {
	cfg, err := LoadConfig(args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
		cfg = config.Default()
	}
	return &App{
		Args:        args,
		Config:      cfg,
		Out:         os.Stdout,
		Err:         os.Stderr,
		In:          os.Stdin,
		Interactive: IsTTY() && IsStdoutTTY() && !args.JSON,
	}
}

// Close releases storage and the log file.
func (a *App) Close() error {
	var err error
	if a.Sessions != nil {
		err = a.Sessions.Close()
	}
	return errors.Join(err, logging.Close())
}

// JSON reports whether output should be JSON.
func (a *App) JSON() bool {
	return a.Args.JSON
}

// info prints a line unless quiet or JSON output is on.
func (a *App) info(format string, args ...any) {
	if a.Args.Quiet || a.Args.JSON {
		return
	}
	fmt.Fprintf(a.Out, format+"\n", args...)
}

// emit writes data as a JSON envelope.
func (a *App) emit(command string, data any) error {
	return NewJSONResponse(command, data).Write(a.Out)
}
