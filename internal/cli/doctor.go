// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command: local and backend diagnostics.
//
// Command: doctor
// Aliases: diag
//
// Checks Performed:
//   - Config file parses and validates
//   - Config directory is writable
//   - Session storage opens
//   - Chat history file is private
//   - Backend answers /health
//   - Document listing works
//
// Exit Codes:
//
//	0  All checks passed (warnings allowed)
//	1  At least one check failed

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/config"
	"github.com/jeranaias/arag-cli/internal/storage"
)

// doctorTimeout bounds each backend check.
const doctorTimeout = 5 * time.Second

var (
	checkPassStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	checkWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	checkFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	fixStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true).PaddingLeft(2)
)

// =============================================================================
// CHECK TYPES
// =============================================================================

// CheckStatus represents the outcome of a check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled tag for the status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return checkPassStyle.Render("[OK]")
	case CheckWarn:
		return checkWarnStyle.Render("[!!]")
	case CheckFail:
		return checkFailStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck is the result of one check.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // Suggested command or instruction
}

// Render formats the check for the terminal.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return result
}

// DoctorCheck is one check in JSON output.
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// DoctorData is returned by the doctor command.
type DoctorData struct {
	Checks  []DoctorCheck `json:"checks"`
	Passed  int           `json:"passed"`
	Warned  int           `json:"warned"`
	Failed  int           `json:"failed"`
	Healthy bool          `json:"healthy"`
}

// =============================================================================
// COMMAND
// =============================================================================

// HandleDoctor runs every check and prints the results.
func HandleDoctor(ctx context.Context, app *App) error {
	checks := runAllChecks(ctx, app.Config)

	var passed, warned, failed int
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	var err error
	if failed > 0 {
		err = fmt.Errorf("%d check(s) failed", failed)
	}

	if app.JSON() {
		data := DoctorData{Passed: passed, Warned: warned, Failed: failed, Healthy: failed == 0}
		for _, c := range checks {
			data.Checks = append(data.Checks, DoctorCheck{Name: c.Name, Status: c.Status.String(), Message: c.Message, Fix: c.Fix})
		}
		resp := NewJSONResponse("doctor", data)
		if err != nil {
			msg := err.Error()
			resp.Success = false
			resp.Error = &msg
		}
		if werr := resp.Write(app.Out); werr != nil {
			return werr
		}
		return Reported(err)
	}

	fmt.Fprintln(app.Out, TitleStyle.Render("arag doctor"))
	fmt.Fprintln(app.Out, RenderSeparator())
	for _, c := range checks {
		fmt.Fprintln(app.Out, c.Render())
	}
	fmt.Fprintln(app.Out, RenderSeparator())

	summary := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		summary = append(summary, checkWarnStyle.Render(fmt.Sprintf("%d warning", warned)))
	}
	if failed > 0 {
		summary = append(summary, checkFailStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(app.Out, DimStyle.Render(strings.Join(summary, ", ")))
	return Reported(err)
}

func runAllChecks(ctx context.Context, cfg *config.Config) []*HealthCheck {
	c := client.New(cfg.Server.BaseURL).
		WithTimeout(doctorTimeout).
		WithUserAgent("arag/" + Version)

	checks := []*HealthCheck{
		checkConfigValid(),
		checkConfigWritable(),
		checkStorage(cfg),
		checkHistoryPrivate(),
	}
	health := checkBackend(ctx, c)
	checks = append(checks, health)
	if health.Status == CheckPass {
		checks = append(checks, checkDocuments(ctx, c))
	}
	return checks
}

// =============================================================================
// CHECKS
// =============================================================================

func checkConfigValid() *HealthCheck {
	check := &HealthCheck{Name: "config"}
	_, err := config.Load()
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config invalid: %v", err)
		check.Fix = "Run: arag config reset --confirm"
		return check
	}
	check.Message = "Config valid"
	return check
}

func checkConfigWritable() *HealthCheck {
	check := &HealthCheck{Name: "config_dir"}
	dir, err := config.ConfigDir()
	if err == nil {
		err = config.EnsureConfigDir()
	}
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config directory unavailable: %v", err)
		check.Fix = "Set " + config.HomeEnv + " to a writable directory"
		return check
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config directory not writable: %v", err)
		check.Fix = "Check permissions: chmod 700 " + dir
		return check
	}
	os.Remove(probe)

	check.Message = "Config directory writable: " + dir
	return check
}

func checkStorage(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "storage"}
	dir, err := cfg.DataDir()
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Data directory unavailable: %v", err)
		return check
	}
	backend, err := storage.Open(cfg.Storage.Backend, dir)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s storage failed to open: %v", cfg.Storage.Backend, err)
		check.Fix = "Try: arag config set storage.backend file"
		return check
	}
	defer backend.Close()

	store := storage.Load(backend)
	check.Message = fmt.Sprintf("%s storage ok (%d sessions)", cfg.Storage.Backend, store.Len())
	return check
}

func checkHistoryPrivate() *HealthCheck {
	check := &HealthCheck{Name: "history"}
	path, err := config.HistoryPath()
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Chat history path unavailable"
		return check
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		check.Message = "No chat history yet"
		return check
	}
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Chat history unreadable: %v", err)
		return check
	}
	if info.Mode().Perm()&0077 != 0 {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Chat history readable by others (%o)", info.Mode().Perm())
		check.Fix = "Run: chmod 600 " + path
		return check
	}
	check.Message = "Chat history private"
	return check
}

func checkBackend(ctx context.Context, c *client.Client) *HealthCheck {
	check := &HealthCheck{Name: "backend"}
	start := time.Now()
	resp, err := c.Health(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Backend %s: %s", c.BaseURL(), UserMessage(err))
		check.Fix = "Start the backend or run: arag config set server.base_url <url>"
		return check
	}
	check.Message = fmt.Sprintf("Backend %s %s (%s)", c.BaseURL(), resp.Status, time.Since(start).Round(time.Millisecond))
	return check
}

func checkDocuments(ctx context.Context, c *client.Client) *HealthCheck {
	check := &HealthCheck{Name: "documents"}
	list, err := c.ListDocuments(ctx, 1, 1)
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Document listing failed: %s", UserMessage(err))
		return check
	}
	if list.Total == 0 {
		check.Status = CheckWarn
		check.Message = "No documents indexed yet"
		check.Fix = "Run: arag docs upload <file.pdf>"
		return check
	}
	check.Message = fmt.Sprintf("%d document(s) indexed", list.Total)
	return check
}
