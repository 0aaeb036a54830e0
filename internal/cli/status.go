// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - The "health" command (alias "status").
//
//	arag health
//	arag health --json
//
// Shows whether the backend answers GET /health and how long it took,
// plus local session and storage state.

package cli

import (
	"context"
	"fmt"
	"time"
)

// HandleHealth checks that the backend is reachable.
func HandleHealth(ctx context.Context, app *App) error {
	start := time.Now()
	resp, err := app.Client.Health(ctx)
	latency := time.Since(start)

	if err != nil {
		if !app.JSON() && !app.Args.Quiet {
			fmt.Fprintln(app.Out, RenderField("Backend", app.Client.BaseURL())+" "+RenderStatus("unreachable"))
		}
		return err
	}

	if app.JSON() {
		return app.emit("health", HealthData{
			BaseURL:   app.Client.BaseURL(),
			Status:    resp.Status,
			Timestamp: resp.Timestamp,
			LatencyMS: latency.Milliseconds(),
		})
	}
	if app.Args.Quiet {
		fmt.Fprintln(app.Out, resp.Status)
		return nil
	}

	fmt.Fprintln(app.Out, TitleStyle.Render("arag status"))
	fmt.Fprintln(app.Out, RenderSeparator())
	fmt.Fprintln(app.Out, RenderField("Backend", app.Client.BaseURL())+" "+RenderStatus(resp.Status))
	fmt.Fprintln(app.Out, RenderField("Latency", formatDurationShort(latency)))
	if resp.Timestamp != "" {
		fmt.Fprintln(app.Out, RenderField("Server time", resp.Timestamp))
	}
	fmt.Fprintln(app.Out, RenderField("Domain", app.Config.Query.Domain))

	store := app.Sessions.Snapshot()
	fmt.Fprintln(app.Out, RenderField("Storage", app.Config.Storage.Backend))
	fmt.Fprintln(app.Out, RenderField("Sessions", fmt.Sprint(store.Len())))
	return nil
}
