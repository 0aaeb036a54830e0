// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - The "ask" command: one question in the current session.
//
// Examples:
//
//	arag ask "What is the notice period in the lease?"
//	arag ask --new "Summarize the onboarding guide"
//	arag ask --session 3f2a "And the penalty?"
//	cat question.txt | arag ask
//
// The question and answer are stored in the session exactly as the
// interactive chat would store them.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/arag-cli/internal/chat"
)

// maxStdinQuestion bounds a question piped on stdin.
const maxStdinQuestion = 64 * 1024

// HandleAsk handles the "ask" command.
func HandleAsk(ctx context.Context, app *App) error {
	p := app.Args.Parser()

	question := strings.TrimSpace(JoinPositionalArgs(p, 0))
	if question == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(app.In, maxStdinQuestion))
		if err != nil {
			return WrapError(err, "failed to read question from stdin")
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return ErrMissingArgument("question", `arag ask "What does the contract say about renewals?"`)
	}

	if ref := p.Flag("session"); ref != "" {
		if err := app.switchQuiet(ref); err != nil {
			return err
		}
	} else if p.BoolFlag("new") {
		if _, _, err := app.Sessions.Create(); err != nil {
			return err
		}
	}

	res, err := app.Chat.Send(ctx, question)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return ErrMissingArgument("question", `arag ask "What does the contract say about renewals?"`)
	}

	if app.JSON() {
		if err != nil {
			return err
		}
		data := AskData{
			SessionID:      res.SessionID,
			Answer:         res.Message.Content,
			Confidence:     res.Message.Confidence,
			SourcesUsed:    res.Message.SourcesUsed,
			RephrasedQuery: res.Message.RephrasedQuery,
		}
		if res.Response != nil {
			data.Iterations = res.Response.Iterations
		}
		return app.emit("ask", data)
	}

	if err != nil {
		fmt.Fprintln(app.Err, ErrorStyle.Render(res.Message.Content))
		return Reported(err)
	}
	if app.Args.Quiet {
		fmt.Fprintln(app.Out, res.Message.Content)
		return nil
	}
	writeMessage(app.Out, app.Renderer, res.Message)
	return nil
}

// switchQuiet makes ref the current session without printing.
func (a *App) switchQuiet(ref string) error {
	sess, err := a.resolveSession(ref)
	if err != nil {
		return err
	}
	_, err = a.Sessions.SetCurrent(sess.ID)
	return err
}
