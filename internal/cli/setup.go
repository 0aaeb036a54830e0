// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - First-run wizard.
//
// Command: setup
// Aliases: init
//
// Examples:
//
//	arag setup            Interactive wizard
//	arag setup --quick    Write the defaults and check the backend
//
// The wizard walks through:
//  1. Backend URL, checked with GET /health
//  2. Query domain and iteration budget
//  3. Session storage backend
//  4. Answer rendering

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/config"
	"github.com/jeranaias/arag-cli/internal/storage"
)

// HandleSetup runs the setup wizard.
func HandleSetup(ctx context.Context, app *App) error {
	p := app.Args.Parser()
	quick := p.BoolFlag("quick") || p.Subcommand() == "quick"

	cfg, err := config.LoadStored()
	if err != nil {
		fmt.Fprintf(app.Err, "%s %v (starting from defaults)\n", WarningStyle.Render("[WARN]"), err)
		cfg = config.Default()
	}

	if !quick {
		if app.JSON() {
			return NewValidationError("--json", "setup", "the wizard is interactive; use setup --quick")
		}
		w := &wizard{in: bufio.NewReader(app.In), out: app.Out}
		if err := w.run(ctx, cfg); err != nil {
			return err
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return NewCommandError("setup", "save", "could not write the configuration", err)
	}
	path, _ := config.ConfigPathTOML()

	if app.JSON() {
		return app.emit("setup", map[string]any{"config_path": path, "config": cfg})
	}
	if quick {
		status := probeBackend(ctx, cfg.Server.BaseURL)
		app.info("%s %s", RenderField("Backend", cfg.Server.BaseURL), status)
	}
	app.info("%s Configuration saved to %s", RenderStatus("ok"), path)
	app.info("Run 'arag' to start chatting.")
	return nil
}

// =============================================================================
// WIZARD
// =============================================================================

type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

func (w *wizard) run(ctx context.Context, cfg *config.Config) error {
	fmt.Fprintln(w.out, TitleStyle.Render("arag setup"))
	fmt.Fprintln(w.out, RenderSeparator())

	w.step("Step 1: Backend")
	for {
		url := strings.TrimRight(w.promptString("Backend URL", cfg.Server.BaseURL), "/")
		probe := *cfg
		probe.Server.BaseURL = url
		if err := probe.Validate(); err != nil {
			fmt.Fprintln(w.out, ErrorStyle.Render("  "+err.Error()))
			continue
		}
		cfg.Server.BaseURL = url
		fmt.Fprintf(w.out, "  Checking %s... %s\n", url, probeBackend(ctx, url))
		break
	}

	w.step("Step 2: Queries")
	cfg.Query.Domain = w.promptString("Document domain", cfg.Query.Domain)
	cfg.Query.MaxIterations = w.promptInt("Max reasoning iterations (1-10)", cfg.Query.MaxIterations, 1, 10)

	w.step("Step 3: Sessions")
	fmt.Fprintln(w.out, "  [1] file   - JSON file in the data directory (recommended)")
	fmt.Fprintln(w.out, "  [2] sqlite - SQLite database")
	fmt.Fprintln(w.out, "  [3] memory - Nothing kept between runs")
	backends := []string{storage.KindFile, storage.KindSQLite, storage.KindMemory}
	cfg.Storage.Backend = backends[w.promptChoice("Storage", backends, indexOf(backends, cfg.Storage.Backend))]

	w.step("Step 4: Display")
	cfg.UI.Markdown = w.promptYesNo("Render answers as markdown?", cfg.UI.Markdown)
	fmt.Fprintln(w.out)
	return nil
}

func (w *wizard) step(title string) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, LabelStyle.Render(title))
}

func (w *wizard) readLine(prompt string) string {
	fmt.Fprint(w.out, PromptStyle.Render(prompt))
	line, err := w.in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

func (w *wizard) promptString(prompt, defaultVal string) string {
	if v := w.readLine(fmt.Sprintf("%s [%s]: ", prompt, defaultVal)); v != "" {
		return v
	}
	return defaultVal
}

func (w *wizard) promptInt(prompt string, defaultVal, lo, hi int) int {
	for {
		v := w.readLine(fmt.Sprintf("%s [%d]: ", prompt, defaultVal))
		if v == "" {
			return defaultVal
		}
		n, err := strconv.Atoi(v)
		if err == nil && n >= lo && n <= hi {
			return n
		}
		fmt.Fprintln(w.out, ErrorStyle.Render(fmt.Sprintf("  enter a number from %d to %d", lo, hi)))
	}
}

func (w *wizard) promptYesNo(prompt string, defaultYes bool) bool {
	suffix := "[Y/n]"
	if !defaultYes {
		suffix = "[y/N]"
	}
	switch strings.ToLower(w.readLine(prompt + " " + suffix + ": ")) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	}
	return false
}

// promptChoice returns the index of the chosen option, by number or name.
func (w *wizard) promptChoice(prompt string, options []string, defaultIdx int) int {
	input := w.readLine(fmt.Sprintf("%s [%s]: ", prompt, options[defaultIdx]))
	if input == "" {
		return defaultIdx
	}
	for i, opt := range options {
		if strings.EqualFold(input, opt) || input == strconv.Itoa(i+1) {
			return i
		}
	}
	return defaultIdx
}

func indexOf(options []string, v string) int {
	for i, o := range options {
		if o == v {
			return i
		}
	}
	return 0
}

// probeBackend reports whether url answers /health.
func probeBackend(ctx context.Context, url string) string {
	c := client.New(url).WithTimeout(doctorTimeout).WithUserAgent("arag/" + Version)
	start := time.Now()
	resp, err := c.Health(ctx)
	if err != nil {
		return RenderStatus("unreachable") + " " + DimStyle.Render(UserMessage(err))
	}
	return RenderStatus(resp.Status) + " " + DimStyle.Render(formatDurationShort(time.Since(start)))
}
