// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// docs_cmd.go - The "docs" command.
//
//	arag docs upload <path>
//	arag docs list [--page N] [--page-size N]
//	arag docs delete <file_id> --confirm
//	arag docs status <task_id> [--watch]

package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/ingest"
	"github.com/jeranaias/arag-cli/internal/tasks"
	"github.com/jeranaias/arag-cli/internal/util"
)

var docsSubcommands = []string{"upload", "list", "delete", "status"}

// HandleDocs dispatches the docs subcommands.
func HandleDocs(ctx context.Context, app *App) error {
	p := app.Args.Parser()

	switch p.Subcommand() {
	case "upload", "add":
		return app.uploadDocument(ctx, p.Positional(1))
	case "", "list", "ls":
		page, err := p.FlagInt("page", client.DefaultPage)
		if err != nil {
			return err
		}
		size, err := p.FlagInt("page-size", app.Config.UI.PageSize)
		if err != nil {
			return err
		}
		return app.listDocuments(ctx, page, size)
	case "delete", "rm":
		return app.deleteDocument(ctx, p.Positional(1), p.BoolFlag("confirm"))
	case "status":
		return app.taskStatus(ctx, p.Positional(1), p.BoolFlag("watch"))
	default:
		return ErrUnknownSubcommand("docs", p.Subcommand(), docsSubcommands)
	}
}

// =============================================================================
// UPLOAD
// =============================================================================

func (a *App) uploadDocument(ctx context.Context, path string) error {
	if path == "" {
		return ErrMissingArgument("path", "arag docs upload ./handbook.pdf")
	}
	// Reject bad files before anything reaches the network.
	info, err := ingest.Inspect(path, a.Ingester.MaxSize())
	if err != nil {
		return err
	}

	start := time.Now()
	var res ingest.Result
	if a.Interactive {
		err = runWithProgress(ctx, a, "Uploading "+info.Name, func(ctx context.Context, report func(stageMsg)) error {
			var werr error
			res, werr = a.Ingester.IngestPath(ctx, path, func(p ingest.Progress) {
				report(ingestStage(p))
			})
			return werr
		})
	} else {
		res, err = a.Ingester.IngestPath(ctx, path, func(p ingest.Progress) {
			if !a.Args.Quiet && !a.JSON() {
				fmt.Fprintln(a.Err, DimStyle.Render(stageLine(ingestStage(p))))
			}
		})
	}
	if err != nil {
		return err
	}

	if a.JSON() {
		data := UploadData{
			TaskID:          res.TaskID,
			Status:          res.Final.Status.String(),
			ChunksProcessed: res.Final.ChunksProcessed,
			TotalChunks:     res.Final.TotalChunks,
			DurationMS:      time.Since(start).Milliseconds(),
		}
		if res.Upload != nil {
			data.FileID = res.Upload.FileID
			data.Filename = res.Upload.Filename
		}
		return a.emit("docs upload", data)
	}

	a.info("%s %s uploaded and indexed (%s, %d chunks, %s)",
		RenderStatus("completed"), info.Name, ingest.FormatFileSize(info.Size),
		res.Final.ChunksProcessed, formatDurationShort(time.Since(start)))
	if res.Upload != nil {
		a.info("%s", RenderField("File ID", res.Upload.FileID))
	}
	return nil
}

// =============================================================================
// LIST
// =============================================================================

const (
	colFilename = 36
	colSize     = 10
	colType     = 14
	colModified = 17
)

func (a *App) listDocuments(ctx context.Context, page, pageSize int) error {
	list, err := a.Client.ListDocuments(ctx, page, pageSize)
	if err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("docs list", list)
	}
	fmt.Fprint(a.Out, FormatDocumentList(list))
	return nil
}

// FormatDocumentList renders a page of documents as an aligned table.
func FormatDocumentList(list *client.DocumentList) string {
	if len(list.Files) == 0 {
		if list.Total > 0 {
			return fmt.Sprintf("No documents on page %d (total %d).\n", list.Page, list.Total)
		}
		return "No documents uploaded yet.\n"
	}

	header := util.PadRight("Filename", colFilename) + " " +
		util.PadRight("Size", colSize) + " " +
		util.PadRight("Type", colType) + " " +
		util.PadRight("Modified", colModified) + " File ID"
	rule := RenderSeparator(util.StringWidth(header) + 24)

	out := TitleStyle.Render("Documents") + "\n" + rule + "\n" + header + "\n" + rule + "\n"
	for _, d := range list.Files {
		out += util.PadRight(util.TruncateWidth(d.Filename, colFilename), colFilename) + " " +
			util.PadRight(ingest.FormatFileSize(d.SizeBytes), colSize) + " " +
			util.PadRight(util.TruncateWidth(shortType(d.ContentType), colType), colType) + " " +
			util.PadRight(formatModified(d.LastModified), colModified) + " " +
			d.FileID + "\n"
	}

	pages := 1
	if list.PageSize > 0 {
		pages = (list.Total + list.PageSize - 1) / list.PageSize
	}
	out += rule + "\n" + DimStyle.Render(fmt.Sprintf("Page %d of %d, %d document(s) total", list.Page, max(pages, 1), list.Total)) + "\n"
	return out
}

func shortType(ct string) string {
	switch ct {
	case ingest.TypePDF:
		return "PDF"
	case ingest.TypeDOC:
		return "Word (.doc)"
	case ingest.TypeDOCX:
		return "Word (.docx)"
	}
	return ct
}

func formatModified(s string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return s
}

// =============================================================================
// DELETE
// =============================================================================

func (a *App) deleteDocument(ctx context.Context, fileID string, confirmed bool) error {
	if fileID == "" {
		return ErrMissingArgument("file_id", "arag docs delete <file_id> --confirm")
	}
	if err := a.RequireConfirmation("Delete document "+fileID, confirmed); err != nil {
		return err
	}
	resp, err := a.Client.DeleteDocument(ctx, fileID)
	if err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("docs delete", resp)
	}
	msg := resp.Message
	if msg == "" {
		msg = "Deleted " + fileID
	}
	a.info("%s %s", RenderStatus("deleted"), msg)
	return nil
}

// =============================================================================
// TASK STATUS
// =============================================================================

func (a *App) taskStatus(ctx context.Context, taskID string, watch bool) error {
	if taskID == "" {
		return ErrMissingArgument("task_id", "arag docs status <task_id> --watch")
	}

	if !watch {
		resp, err := a.Client.TaskStatus(ctx, taskID)
		if err != nil {
			return err
		}
		snap := tasks.SnapshotFrom(resp)
		if a.JSON() {
			return a.emit("docs status", snap)
		}
		a.printSnapshot(snap)
		return nil
	}

	var final tasks.Snapshot
	var err error
	if a.Interactive {
		err = runWithProgress(ctx, a, "Task "+shortID(taskID), func(ctx context.Context, report func(stageMsg)) error {
			var werr error
			final, werr = a.Poller.WatchNamed(ctx, taskID, "task "+taskID).Wait(func(s tasks.Snapshot) {
				report(snapshotStage(s))
			})
			return werr
		})
	} else {
		final, err = a.Poller.WatchNamed(ctx, taskID, "task "+taskID).Wait(func(s tasks.Snapshot) {
			if !a.Args.Quiet && !a.JSON() {
				fmt.Fprintln(a.Err, DimStyle.Render(stageLine(snapshotStage(s))))
			}
		})
	}
	if err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("docs status", final)
	}
	a.printSnapshot(final)
	return nil
}

func (a *App) printSnapshot(s tasks.Snapshot) {
	fmt.Fprintln(a.Out, RenderField("Task", s.TaskID)+" "+RenderStatus(s.Status.String()))
	if s.FileID != nil {
		fmt.Fprintln(a.Out, RenderField("File ID", *s.FileID))
	}
	fmt.Fprintln(a.Out, RenderField("Chunks", strconv.Itoa(s.ChunksProcessed)+"/"+strconv.Itoa(s.TotalChunks)+fmt.Sprintf(" (%d%%)", s.ProgressPercent())))
	if s.Message != "" {
		fmt.Fprintln(a.Out, RenderField("Message", s.Message))
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintln(a.Out, RenderField("Created", s.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	}
	if s.CompletedAt != nil {
		fmt.Fprintln(a.Out, RenderField("Completed", s.CompletedAt.Local().Format("2006-01-02 15:04:05")))
	}
}
