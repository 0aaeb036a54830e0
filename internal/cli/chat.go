// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Usage:
//
//	arag chat
//	arag          (no command)
//
// Slash commands:
//
//	/new                Start a new session
//	/sessions           List sessions
//	/switch <id>        Make a session current
//	/delete <id>        Delete a session
//	/history            Show the current session
//	/upload <path>      Upload and index a document in the background
//	/docs               List uploaded documents
//	/tasks              Show background uploads
//	/help, /?           Show this help
//	/quit, /exit, /q    Leave
//
// Anything else is sent as a question. Ctrl+C cancels a running query;
// at the prompt it leaves the REPL.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/arag-cli/internal/chat"
	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/config"
	"github.com/jeranaias/arag-cli/internal/ingest"
	"github.com/jeranaias/arag-cli/internal/logging"
	"github.com/jeranaias/arag-cli/internal/storage"
	"github.com/jeranaias/arag-cli/internal/tasks"
)

const chatPrompt = "arag> "

const chatHelp = `Commands:
  /new                Start a new session
  /sessions           List sessions
  /switch <id>        Make a session current
  /delete <id>        Delete a session
  /history            Show the current session
  /upload <path>      Upload and index a document in the background
  /docs               List uploaded documents
  /tasks              Show background uploads
  /help               Show this help
  /quit               Leave

Anything else is asked in the current session.`

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input per call.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerInput provides line editing and persistent history.
type linerInput struct {
	state       *liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	in := &linerInput{state: state}
	if path, err := config.HistoryPath(); err == nil {
		in.historyFile = path
		if f, err := os.Open(path); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return in
}

func (l *linerInput) Prompt(prompt string) (string, error) {
	line, err := l.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		l.state.AppendHistory(line)
	}
	return line, nil
}

// Close saves the history with owner-only permissions.
func (l *linerInput) Close() error {
	defer l.state.Close()
	if l.historyFile == "" {
		return nil
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = l.state.WriteHistory(f)
	return err
}

// plainInput reads lines from a non-terminal reader.
type plainInput struct {
	out     io.Writer
	scanner *bufio.Scanner
}

func newPlainInput(in io.Reader, out io.Writer) *plainInput {
	return &plainInput{out: out, scanner: bufio.NewScanner(in)}
}

func (p *plainInput) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainInput) Close() error { return nil }

// =============================================================================
// SHELL
// =============================================================================

// ChatShell executes REPL input against an App.
type ChatShell struct {
	app *App

	// bg owns background uploads; canceled when the shell closes.
	bg     context.Context
	stopBg context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	notes []string
}

// NewChatShell creates a shell for app.
func NewChatShell(app *App) *ChatShell {
	bg, stop := context.WithCancel(context.Background())
	return &ChatShell{app: app, bg: bg, stopBg: stop}
}

// Close cancels background uploads and waits for them.
func (s *ChatShell) Close() {
	s.stopBg()
	s.wg.Wait()
}

// HandleChat runs the interactive REPL.
func HandleChat(ctx context.Context, app *App) error {
	if app.JSON() {
		return NewValidationError("--json", "chat", "the chat REPL has no JSON mode; use ask")
	}

	shell := NewChatShell(app)
	defer shell.Close()

	if w := shell.startWatcher(); w != nil {
		defer w.Close()
	}

	var input lineReader
	if IsTTY() {
		input = newLinerInput()
	} else {
		input = newPlainInput(app.In, app.Out)
	}
	defer func() {
		if err := input.Close(); err != nil {
			logging.Log().Warnf("failed to save chat history: %v", err)
		}
	}()

	shell.banner()
	for {
		shell.flushNotes()

		line, err := input.Prompt(chatPrompt)
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D and end of input all leave.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				logging.Log().Warnf("prompt failed: %v", err)
			}
			fmt.Fprintln(app.Out)
			return nil
		}

		quit, err := shell.Exec(ctx, line)
		if err != nil {
			fmt.Fprintf(app.Err, "%s %s\n", ErrorStyle.Render("[ERROR]"), UserMessage(err))
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

// startWatcher reloads sessions when another process changes the file store.
func (s *ChatShell) startWatcher() *storage.Watcher {
	if !s.app.Config.Storage.Watch {
		return nil
	}
	fb, ok := s.app.Sessions.Backend().(*storage.FileBackend)
	if !ok {
		return nil
	}
	w, err := storage.NewWatcher(s.app.Sessions, fb, func(store storage.Store) {
		s.note(DimStyle.Render(fmt.Sprintf("Sessions reloaded (%d)", store.Len())))
	})
	if err != nil {
		logging.Log().Warnf("session watcher disabled: %v", err)
		return nil
	}
	return w
}

func (s *ChatShell) banner() {
	a := s.app
	fmt.Fprintln(a.Out, TitleStyle.Render("arag chat")+" "+DimStyle.Render(a.Client.BaseURL()))
	if cur, ok := storage.Current(a.Sessions.Snapshot()); ok {
		fmt.Fprintln(a.Out, DimStyle.Render(fmt.Sprintf("Session %s: %s (%d messages)", shortID(cur.ID), cur.DisplayTitle(), len(cur.Messages))))
	}
	fmt.Fprintln(a.Out, DimStyle.Render("Type /help for commands, /quit to leave."))
	fmt.Fprintln(a.Out)
}

// note queues a line to print before the next prompt.
func (s *ChatShell) note(line string) {
	s.mu.Lock()
	s.notes = append(s.notes, line)
	s.mu.Unlock()
}

// flushNotes prints queued lines and finished background tasks.
func (s *ChatShell) flushNotes() {
	s.mu.Lock()
	notes := s.notes
	s.notes = nil
	s.mu.Unlock()

	for _, n := range notes {
		fmt.Fprintln(s.app.Out, n)
	}
	for {
		select {
		case n := <-s.app.Tasks.Notifications():
			fmt.Fprintln(s.app.Out, notificationLine(n))
		default:
			return
		}
	}
}

func notificationLine(n tasks.Notification) string {
	switch n.State {
	case tasks.StateComplete:
		return fmt.Sprintf("%s %s indexed (%s)", RenderStatus("completed"), n.Description, formatDurationShort(n.Duration))
	case tasks.StateCanceled:
		return fmt.Sprintf("%s %s", RenderStatus("canceled"), n.Description)
	}
	line := fmt.Sprintf("%s %s", RenderStatus(strings.ToLower(n.State.String())), n.Description)
	if n.Error != "" {
		line += ": " + n.Error
	}
	return line
}

// Exec runs one line of input. quit is true when the user asked to leave.
func (s *ChatShell) Exec(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.ask(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	a := s.app

	switch strings.ToLower(cmd) {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		fmt.Fprintln(a.Out, chatHelp)
		return false, nil
	case "/new":
		return false, a.newSession()
	case "/sessions", "/ls":
		return false, a.listSessions()
	case "/switch":
		if arg == "" {
			return false, ErrMissingArgument("session id", "/switch <id>")
		}
		return false, a.switchSession(arg)
	case "/delete":
		if arg == "" {
			return false, ErrMissingArgument("session id", "/delete <id>")
		}
		// Typing the id at the prompt is the confirmation.
		return false, a.deleteSession(arg, true)
	case "/history":
		return false, a.showSession("")
	case "/upload":
		return false, s.upload(arg)
	case "/docs":
		return false, a.listDocuments(ctx, client.DefaultPage, a.Config.UI.PageSize)
	case "/tasks":
		s.showTasks()
		return false, nil
	}
	if s := Suggest(cmd, slashCommands); s != "" {
		return false, &ValidationError{Field: "command", Value: cmd, Reason: "unknown command", Example: "did you mean " + s}
	}
	return false, NewValidationError("command", cmd, "unknown command, type /help")
}

// ask sends a question. Ctrl+C cancels only this query.
func (s *ChatShell) ask(ctx context.Context, text string) error {
	qctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(s.app.Out, DimStyle.Render("Thinking..."))
	res, err := s.app.Chat.Send(qctx, text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return nil
	case errors.Is(err, chat.ErrBusy):
		return err
	case err != nil && res.Message.Content == "":
		return err
	case err != nil && qctx.Err() != nil && ctx.Err() == nil:
		fmt.Fprintln(s.app.Out, WarningStyle.Render("[Cancelled]"))
		return nil
	}
	// Failures are stored as an assistant message and shown like one.
	writeMessage(s.app.Out, s.app.Renderer, res.Message)
	return nil
}

// upload validates path now and ingests it in the background.
func (s *ChatShell) upload(path string) error {
	if path == "" {
		return ErrMissingArgument("path", "/upload ./handbook.pdf")
	}
	info, err := ingest.Inspect(path, s.app.Ingester.MaxSize())
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.app.Ingester.IngestPath(s.bg, path, nil)
		// Once a task id exists its watch reports through the registry.
		if err != nil && res.TaskID == "" && s.bg.Err() == nil {
			s.note(fmt.Sprintf("%s %s: %s", RenderStatus("failed"), info.Name, UserMessage(err)))
		}
	}()

	fmt.Fprintf(s.app.Out, "%s Uploading %s (%s) in the background; /tasks shows progress\n",
		RenderStatus("started"), info.Name, ingest.FormatFileSize(info.Size))
	return nil
}

func (s *ChatShell) showTasks() {
	all := s.app.Tasks.All()
	if len(all) == 0 {
		fmt.Fprintln(s.app.Out, DimStyle.Render("No background tasks."))
		return
	}
	for _, t := range all {
		fmt.Fprintln(s.app.Out, t.Summary())
	}
	fmt.Fprintln(s.app.Out, DimStyle.Render(s.app.Tasks.Summary()))
}
