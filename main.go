// arag - A terminal client for an agentic RAG document-QA service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/arag-cli/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args := cli.Parse(argv)

	// The REPL handles Ctrl+C per query; everything else stops on it.
	signals := []os.Signal{syscall.SIGTERM}
	if cmd != cli.CmdChat {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	err := dispatch(ctx, cmd, args)
	if err != nil {
		cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
	}
	return cli.GetExitCode(err)
}

func dispatch(ctx context.Context, cmd cli.Command, args cli.Args) error {
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return nil
	case cli.CmdVersion:
		return cli.HandleVersion(os.Stdout, args.JSON)
	case cli.CmdUnknown:
		return cli.UnknownCommandError(args.Name)
	case cli.CmdConfig:
		return cli.HandleConfig(cli.NewConfigApp(args))
	case cli.CmdDoctor:
		return cli.HandleDoctor(ctx, cli.NewConfigApp(args))
	case cli.CmdSetup:
		return cli.HandleSetup(ctx, cli.NewConfigApp(args))
	}

	app, err := cli.NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case cli.CmdChat:
		return cli.HandleChat(ctx, app)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, app)
	case cli.CmdSessions:
		return cli.HandleSessions(app)
	case cli.CmdDocs:
		return cli.HandleDocs(ctx, app)
	case cli.CmdHealth:
		return cli.HandleHealth(ctx, app)
	}
	return nil
}
