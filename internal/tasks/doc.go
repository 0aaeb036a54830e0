// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks watches backend embedding tasks until they finish.
//
// A Poller fetches GET /tasks/{id} immediately and then once per interval,
// paced by a token-bucket limiter, until the task is completed or failed.
//
// # Key Types
//
//   - Snapshot: one observation of a backend task
//   - Watch: a cancellable polling run exposing a finite iterator
//   - Task: the local record of a watch (state, progress, timing)
//   - Registry: active and recent records for long-lived sessions
//
// # Usage
//
//	p := tasks.NewPoller(apiClient, tasks.Options{})
//	w := p.Watch(ctx, taskID)
//	for snap, err := range w.Snapshots() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("%d%%\n", snap.ProgressPercent())
//	}
//
// Or, with a callback:
//
//	final, err := p.Poll(ctx, taskID, func(s tasks.Snapshot) {
//	    fmt.Println(s.Status, s.Message)
//	})
package tasks
