// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/arag-cli/internal/storage"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Renderer turns answers into terminal markdown. A nil or disabled
// Renderer passes text through.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer builds a glamour renderer for theme ("dark", "light",
// "auto" or "notty"). It returns nil when rendering is disabled or the
// renderer can't be built.
func NewRenderer(enabled bool, theme string, width int) *Renderer {
	if !enabled {
		return nil
	}
	if width <= 0 {
		width = DefaultTerminalWidth
	}

	if theme == "auto" {
		theme = "light"
		if HasDarkBackground() {
			theme = "dark"
		}
	}
	md, err := glamour.NewTermRenderer(glamour.WithStandardStyle(theme), glamour.WithWordWrap(width-4))
	if err != nil {
		return nil
	}
	return &Renderer{md: md}
}

// Markdown renders content, falling back to the raw text on error.
func (r *Renderer) Markdown(content string) string {
	if r == nil || r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// MESSAGES
// =============================================================================

// writeMessage prints one chat message with its role header and, for
// answers, the metadata line.
func writeMessage(w io.Writer, r *Renderer, msg storage.Message) {
	switch msg.Role {
	case storage.RoleUser:
		fmt.Fprintf(w, "%s %s\n", UserStyle.Render("You"), DimStyle.Render(msg.Timestamp.Local().Format("15:04")))
		fmt.Fprintln(w, msg.Content)
	default:
		fmt.Fprintf(w, "%s %s\n", AssistantStyle.Render("Assistant"), DimStyle.Render(msg.Timestamp.Local().Format("15:04")))
		fmt.Fprintln(w, strings.TrimRight(r.Markdown(msg.Content), "\n"))
		if meta := storage.AnswerMeta(msg); meta != "" {
			fmt.Fprintln(w, MetaStyle.Render(meta))
		}
	}
	fmt.Fprintln(w)
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// Highlight writes source with chroma highlighting when color is true.
func Highlight(w io.Writer, source, lexer string, color bool) error {
	if !color {
		_, err := io.WriteString(w, source)
		return err
	}
	if err := quick.Highlight(w, source, lexer, "terminal256", "monokai"); err != nil {
		_, err = io.WriteString(w, source)
		return err
	}
	return nil
}
