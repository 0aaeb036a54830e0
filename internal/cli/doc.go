// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the commands of arag.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Global flags plus the command's own arguments
//   - App: Configuration, client, session manager and orchestrators shared by commands
//   - ChatShell: The interactive REPL, driven line by line through Exec
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	app, err := cli.NewApp(args)
//	...
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, app)
//	// ... other commands
//	}
//	os.Exit(cli.GetExitCode(err))
//
// # Commands Overview
//
//   - chat: Interactive chat (default)
//   - ask: Single question in the current session
//   - sessions: List, show, create, switch, delete, export and clear sessions
//   - docs: Upload, list, delete documents and watch embedding tasks
//   - health: Backend health check
//   - config: Show and edit configuration
//
// All commands support --json for scripting.
package cli
