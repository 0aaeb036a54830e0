// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - "Did you mean" suggestions for mistyped commands.
package cli

import (
	"strings"
)

// validCommands lists every command word, aliases included.
var validCommands = []string{
	"chat", "repl",
	"ask",
	"sessions", "session",
	"docs", "doc", "documents",
	"health", "status",
	"config",
	"doctor", "diag",
	"setup", "init",
	"version",
	"help",
}

// slashCommands lists the REPL commands.
var slashCommands = []string{
	"/new", "/sessions", "/switch", "/delete", "/history",
	"/upload", "/docs", "/tasks", "/help", "/quit", "/exit",
}

// SuggestCommand returns the command closest to input, or "" when nothing
// is close enough.
func SuggestCommand(input string) string {
	return Suggest(input, validCommands)
}

// Suggest returns the candidate closest to input within a length-based edit
// distance: 1 for up to 3 characters, 2 up to 8, then 3.
func Suggest(input string, candidates []string) string {
	input = strings.ToLower(input)
	if len([]rune(input)) < 2 {
		return ""
	}

	maxDistance := 1
	if n := len([]rune(input)); n > 8 {
		maxDistance = 3
	} else if n >= 4 {
		maxDistance = 2
	}

	best, bestDistance := "", -1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d == 0 {
			return ""
		}
		if d <= maxDistance && (bestDistance == -1 || d < bestDistance) {
			best, bestDistance = c, d
		}
	}
	return best
}

// UnknownCommandError reports a command word arag does not know.
func UnknownCommandError(name string) error {
	example := "arag help"
	if s := SuggestCommand(name); s != "" {
		example = "did you mean: arag " + s
	}
	return &ValidationError{Field: "command", Value: name, Reason: "unknown command", Example: example}
}

// levenshteinDistance is the number of single-rune insertions, deletions or
// substitutions turning s1 into s2.
func levenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
