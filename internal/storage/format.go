// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/arag-cli/internal/util"
)

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

const (
	colID      = 8
	colTitle   = 36
	colCount   = 8
	colUpdated = 16
)

// FormatSessionList renders the sessions as an aligned table. The current
// session is marked with "*".
func FormatSessionList(store Store) string {
	if len(store.Sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 2+colID+1+colTitle+1+colCount+1+colUpdated)

	sb.WriteString("Sessions:\n")
	sb.WriteString(rule + "\n")
	sb.WriteString("  " + util.PadRight("ID", colID) + " " +
		util.PadRight("Title", colTitle) + " " +
		util.PadRight("Messages", colCount) + " Updated\n")
	sb.WriteString(rule + "\n")

	for _, s := range store.Sessions {
		marker := "  "
		if s.ID == store.CurrentID {
			marker = "* "
		}
		id := s.ID
		if len(id) > colID {
			id = id[:colID]
		}
		title := util.TruncateWidth(s.DisplayTitle(), colTitle)

		sb.WriteString(marker +
			util.PadRight(id, colID) + " " +
			util.PadRight(title, colTitle) + " " +
			util.PadRight(strconv.Itoa(len(s.Messages)), colCount) + " " +
			s.UpdatedAt.Local().Format("2006-01-02 15:04") + "\n")
	}
	return sb.String()
}

// =============================================================================
// SESSION EXPORT
// =============================================================================

// Export formats.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Export renders a session in the named format.
func Export(s Session, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatMarkdown, "markdown":
		return []byte(ExportMarkdown(s)), nil
	case FormatJSON:
		return ExportJSON(s)
	case FormatYAML, "yml":
		return ExportYAML(s)
	default:
		return nil, fmt.Errorf("unknown export format %q (want md, json or yaml)", format)
	}
}

// ExportMarkdown renders the session with role labels and answer metadata.
func ExportMarkdown(s Session) string {
	var sb strings.Builder
	sb.WriteString("# " + s.DisplayTitle() + "\n\n")
	sb.WriteString("Session: `" + s.ID + "`  \n")
	sb.WriteString("Created: " + s.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range s.Messages {
		role := "**User**"
		if msg.Role == RoleAssistant {
			role = "**Assistant**"
		}
		sb.WriteString(role + " (" + msg.Timestamp.Local().Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		if meta := AnswerMeta(msg); meta != "" {
			sb.WriteString("_" + meta + "_\n\n")
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// AnswerMeta summarizes confidence, sources and rephrasing on one line.
func AnswerMeta(msg Message) string {
	var parts []string
	if msg.Confidence != nil {
		parts = append(parts, fmt.Sprintf("confidence %.0f%%", *msg.Confidence*100))
	}
	if msg.SourcesUsed != nil {
		parts = append(parts, fmt.Sprintf("%d sources", *msg.SourcesUsed))
	}
	if msg.RephrasedQuery != "" {
		parts = append(parts, "searched for: "+msg.RephrasedQuery)
	}
	return strings.Join(parts, " | ")
}

// ExportJSON renders the session as indented JSON.
func ExportJSON(s Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ExportYAML renders the session as YAML.
func ExportYAML(s Session) ([]byte, error) {
	return yaml.Marshal(s)
}
