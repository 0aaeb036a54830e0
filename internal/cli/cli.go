// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and usage for arag.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdSessions
	CmdDocs
	CmdHealth
	CmdConfig
	CmdDoctor
	CmdSetup
	CmdVersion
	CmdHelp
	CmdUnknown
)

// String returns the command name as typed by the user.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdSessions:
		return "sessions"
	case CmdDocs:
		return "docs"
	case CmdHealth:
		return "health"
	case CmdConfig:
		return "config"
	case CmdDoctor:
		return "doctor"
	case CmdSetup:
		return "setup"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON      bool
	Quiet     bool
	Verbose   bool
	Ephemeral bool   // keep sessions in memory only
	BaseURL   string // overrides server.base_url

	// Name is the command word as typed, used in error messages.
	Name string

	// Raw args after the command word.
	Raw []string
}

// Parser returns an ArgParser over the command's own arguments.
func (a Args) Parser() *ArgParser {
	return NewArgParser(a.Raw)
}

const usageText = `arag - command-line client for an agentic RAG document-QA service

Usage:
  arag [global flags] <command>

Commands:
  chat                          Interactive chat (default)
  ask "question"                Ask a single question in the current session
  sessions list                 List saved chat sessions
  sessions show <id>            Show a session transcript
  sessions new                  Start a new session and make it current
  sessions switch <id>          Make a session current
  sessions delete <id>          Delete a session
    --confirm                   Required confirmation flag
  sessions export <id>          Export a session
    --format md|json|yaml       Export format (default: md)
  sessions clear                Delete all sessions
    --confirm                   Required confirmation flag
  docs upload <path>            Validate, upload and index a document
  docs list                     List uploaded documents
    --page N --page-size N      Pagination (defaults: 1, ui.page_size)
  docs delete <file_id>         Delete a document
    --confirm                   Required confirmation flag
  docs status <task_id>         Show an embedding task
    --watch                     Poll until the task finishes
  health                        Check the backend
  doctor                        Diagnose config, storage and backend
  setup                         First-run wizard
    --quick                     Save the defaults without prompting
  config show                   Print the effective configuration
  config path                   Print the configuration file path
  config get <key>              Print one setting
  config set <key> <value>      Change a setting in config.toml
  config keys                   List every setting
  config reset --confirm        Restore the defaults
  version                       Print version information
  help                          Show this help

Chat commands:
  /new  /sessions  /switch <id>  /delete <id>  /history
  /upload <path>  /docs  /tasks  /help  /quit

Global Flags:
  --json            Output in JSON format
  -q, --quiet       Minimal output
  -v, --verbose     Debug logging
  --base-url URL    Override the backend URL
  --ephemeral       Keep sessions in memory only

Environment:
  ARAG_HOME, ARAG_BASE_URL, ARAG_TIMEOUT, ARAG_DOMAIN, ARAG_MAX_ITERATIONS,
  ARAG_POLL_INTERVAL, ARAG_STORAGE, ARAG_LOG_LEVEL

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "arag version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		parsedArgs.Name = "chat"
		return CmdChat, parsedArgs
	}

	name := strings.ToLower(remaining[0])
	parsedArgs.Name = name
	parsedArgs.Raw = remaining[1:]

	switch name {
	case "chat", "repl":
		return CmdChat, parsedArgs
	case "ask", "q":
		return CmdAsk, parsedArgs
	case "session", "sessions":
		return CmdSessions, parsedArgs
	case "doc", "docs", "documents":
		return CmdDocs, parsedArgs
	case "health", "status":
		return CmdHealth, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "doctor", "diag":
		return CmdDoctor, parsedArgs
	case "setup", "init":
		return CmdSetup, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	default:
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear anywhere on the line.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--json":
			parsedArgs.JSON = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--ephemeral":
			parsedArgs.Ephemeral = true
		case "--base-url":
			if i+1 < len(args) {
				i++
				parsedArgs.BaseURL = args[i]
			}
		default:
			if strings.HasPrefix(arg, "--base-url=") {
				parsedArgs.BaseURL = strings.TrimPrefix(arg, "--base-url=")
			} else {
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// HandleVersion prints version information. It needs no config or storage.
func HandleVersion(w io.Writer, jsonMode bool) error {
	if jsonMode {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(w)
	}
	PrintVersion(w)
	return nil
}
