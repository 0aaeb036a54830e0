// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// progress.go - Spinner and progress bar shown while a document is
// uploaded and indexed.

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/arag-cli/internal/ingest"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

// =============================================================================
// MESSAGES
// =============================================================================

// stageMsg reports the current step of the work.
type stageMsg struct {
	Stage   string
	Detail  string
	Percent float64
	ShowBar bool
}

// finishedMsg ends the program.
type finishedMsg struct {
	err error
}

// =============================================================================
// MODEL
// =============================================================================

type progressModel struct {
	title   string
	spinner spinner.Model
	bar     progress.Model
	cancel  context.CancelFunc

	stage    stageMsg
	done     bool
	aborting bool
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = InfoStyle

	return progressModel{
		title:   title,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel:  cancel,
		stage:   stageMsg{Stage: "Starting"},
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			// The work notices the cancellation and sends finishedMsg.
			m.aborting = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		width := msg.Width - 10
		if width > 60 {
			width = 60
		}
		if width < 10 {
			width = 10
		}
		m.bar.Width = width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stageMsg:
		m.stage = msg
		return m, nil

	case finishedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s\n", m.spinner.View(), TitleStyle.Render(m.title), ValueStyle.Render(m.stage.Stage))
	if m.stage.Detail != "" {
		fmt.Fprintf(&sb, "  %s\n", DimStyle.Render(m.stage.Detail))
	}
	if m.stage.ShowBar {
		fmt.Fprintf(&sb, "  %s\n", m.bar.ViewAs(m.stage.Percent))
	}
	if m.aborting {
		fmt.Fprintf(&sb, "  %s\n", WarningStyle.Render("Cancelling..."))
	} else {
		fmt.Fprintf(&sb, "  %s\n", DimStyle.Render("ctrl+c to cancel"))
	}
	return sb.String()
}

// =============================================================================
// RUNNER
// =============================================================================

// runWithProgress runs work while the progress view is on screen. work
// reports through the supplied function and is cancelled from the keyboard.
func runWithProgress(ctx context.Context, app *App, title string, work func(ctx context.Context, report func(stageMsg)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newProgressModel(title, cancel), tea.WithOutput(app.Err))

	errCh := make(chan error, 1)
	go func() {
		err := work(ctx, func(s stageMsg) { prog.Send(s) })
		errCh <- err
		prog.Send(finishedMsg{err: err})
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-errCh
		return WrapError(err, "progress view failed")
	}
	return <-errCh
}

// =============================================================================
// STAGE MAPPING
// =============================================================================

// ingestStage describes an ingestion step for display.
func ingestStage(p ingest.Progress) stageMsg {
	switch p.Stage {
	case ingest.StageValidating:
		return stageMsg{Stage: "Validating", Detail: p.File}
	case ingest.StageUploading:
		return stageMsg{Stage: "Uploading", Detail: p.File}
	case ingest.StageEmbedding:
		return stageMsg{Stage: "Starting embedding", Detail: "file " + p.FileID}
	case ingest.StageProcessing, ingest.StageDone:
		if p.Snapshot != nil {
			return snapshotStage(*p.Snapshot)
		}
		return stageMsg{Stage: "Processing"}
	}
	return stageMsg{Stage: string(p.Stage)}
}

// snapshotStage describes a task snapshot for display.
func snapshotStage(s tasks.Snapshot) stageMsg {
	msg := stageMsg{
		Stage:   "Indexing",
		Percent: float64(s.ProgressPercent()) / 100,
		ShowBar: true,
	}
	if s.Status == tasks.StatusCompleted {
		msg.Stage = "Completed"
	}
	if s.TotalChunks > 0 {
		msg.Detail = fmt.Sprintf("%d/%d chunks", s.ChunksProcessed, s.TotalChunks)
	} else if s.Message != "" {
		msg.Detail = s.Message
	}
	return msg
}

// stageLine renders a stage as one plain line for non-interactive output.
func stageLine(s stageMsg) string {
	line := s.Stage
	if s.ShowBar {
		line += fmt.Sprintf(" %3.0f%%", s.Percent*100)
	}
	if s.Detail != "" {
		line += " " + s.Detail
	}
	return line
}
