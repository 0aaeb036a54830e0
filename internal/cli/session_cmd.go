// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - The "sessions" command.
//
//	arag sessions list
//	arag sessions show <id>
//	arag sessions new
//	arag sessions switch <id>
//	arag sessions delete <id> --confirm
//	arag sessions export <id> [--format md|json|yaml] [--output FILE]
//	arag sessions clear --confirm
//
// Session ids may be abbreviated to any unique prefix.

package cli

import (
	"fmt"

	"github.com/jeranaias/arag-cli/internal/storage"
	"github.com/jeranaias/arag-cli/internal/util"
)

var sessionSubcommands = []string{"list", "show", "new", "switch", "delete", "export", "clear"}

// HandleSessions dispatches the sessions subcommands.
func HandleSessions(app *App) error {
	p := app.Args.Parser()

	switch p.Subcommand() {
	case "", "list", "ls":
		return app.listSessions()
	case "show":
		return app.showSession(p.Positional(1))
	case "new":
		return app.newSession()
	case "switch", "use":
		return app.switchSession(p.Positional(1))
	case "delete", "rm":
		return app.deleteSession(p.Positional(1), p.BoolFlag("confirm"))
	case "export":
		return app.exportSession(p.Positional(1), p.FlagOrDefault("format", storage.FormatMarkdown), p.Flag("output"))
	case "clear":
		return app.clearSessions(p.BoolFlag("confirm"))
	default:
		return ErrUnknownSubcommand("sessions", p.Subcommand(), sessionSubcommands)
	}
}

// resolveSession finds a session by id or unique prefix. An empty ref
// means the current session.
func (a *App) resolveSession(ref string) (storage.Session, error) {
	store := a.Sessions.Snapshot()
	if ref == "" {
		if cur, ok := storage.Current(store); ok {
			return cur, nil
		}
		return storage.Session{}, ErrMissingArgument("session id", "arag sessions show <id>")
	}
	return store.Resolve(ref)
}

func summarize(store storage.Store) []SessionSummary {
	out := make([]SessionSummary, 0, len(store.Sessions))
	for _, s := range store.Sessions {
		out = append(out, SessionSummary{
			ID:           s.ID,
			Title:        s.DisplayTitle(),
			Preview:      util.TruncateRunes(util.SingleLine(s.Preview()), 80),
			MessageCount: len(s.Messages),
			Current:      s.ID == store.CurrentID,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		})
	}
	return out
}

func (a *App) listSessions() error {
	store := a.Sessions.Snapshot()
	if a.JSON() {
		return a.emit("sessions list", summarize(store))
	}
	fmt.Fprint(a.Out, storage.FormatSessionList(store))
	if store.Len() > 0 {
		fmt.Fprintln(a.Out)
		fmt.Fprintln(a.Out, DimStyle.Render(fmt.Sprintf("%d session(s); * marks the current one", store.Len())))
	} else {
		fmt.Fprintln(a.Out)
	}
	return nil
}

func (a *App) showSession(ref string) error {
	sess, err := a.resolveSession(ref)
	if err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("sessions show", sess)
	}

	fmt.Fprintln(a.Out, TitleStyle.Render(sess.DisplayTitle()))
	fmt.Fprintln(a.Out, RenderField("ID", sess.ID))
	fmt.Fprintln(a.Out, RenderField("Created", sess.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	fmt.Fprintln(a.Out, RenderField("Messages", fmt.Sprint(len(sess.Messages))))
	fmt.Fprintln(a.Out, RenderSeparator())
	if len(sess.Messages) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No messages yet."))
		return nil
	}
	for _, msg := range sess.Messages {
		writeMessage(a.Out, a.Renderer, msg)
	}
	return nil
}

func (a *App) newSession() error {
	_, sess, err := a.Sessions.Create()
	if err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("sessions new", sess)
	}
	a.info("%s Started session %s", RenderStatus("ok"), shortID(sess.ID))
	return nil
}

func (a *App) switchSession(ref string) error {
	if ref == "" {
		return ErrMissingArgument("session id", "arag sessions switch <id>")
	}
	sess, err := a.resolveSession(ref)
	if err != nil {
		return err
	}
	if _, err := a.Sessions.SetCurrent(sess.ID); err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("sessions switch", SessionSummary{
			ID:           sess.ID,
			Title:        sess.DisplayTitle(),
			MessageCount: len(sess.Messages),
			Current:      true,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	a.info("%s Switched to %s %s", RenderStatus("ok"), shortID(sess.ID), DimStyle.Render(sess.DisplayTitle()))
	return nil
}

func (a *App) deleteSession(ref string, confirmed bool) error {
	if ref == "" {
		return ErrMissingArgument("session id", "arag sessions delete <id> --confirm")
	}
	sess, err := a.resolveSession(ref)
	if err != nil {
		return err
	}
	if err := a.RequireConfirmation(fmt.Sprintf("Delete session %q", sess.DisplayTitle()), confirmed); err != nil {
		return err
	}
	if _, err := a.Sessions.Delete(sess.ID); err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("sessions delete", map[string]string{"id": sess.ID, "status": "deleted"})
	}
	a.info("%s Deleted session %s", RenderStatus("deleted"), shortID(sess.ID))
	return nil
}

func (a *App) exportSession(ref, format, output string) error {
	if ref == "" {
		return ErrMissingArgument("session id", "arag sessions export <id> --format md")
	}
	sess, err := a.resolveSession(ref)
	if err != nil {
		return err
	}
	data, err := storage.Export(sess, format)
	if err != nil {
		return ErrUnsupportedFormat(format, []string{storage.FormatMarkdown, storage.FormatJSON, storage.FormatYAML})
	}

	if output == "" {
		_, err = a.Out.Write(data)
		return err
	}
	output, err = ValidateOutputPath(output)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(output, data, 0600); err != nil {
		return WrapError(err, "failed to write export")
	}
	if a.JSON() {
		return a.emit("sessions export", map[string]any{"id": sess.ID, "output": output, "bytes": len(data)})
	}
	a.info("%s Exported %s to %s (%s)", RenderStatus("ok"), shortID(sess.ID), output, util.FormatFileSize(int64(len(data))))
	return nil
}

func (a *App) clearSessions(confirmed bool) error {
	count := a.Sessions.Snapshot().Len()
	if err := a.RequireConfirmation(fmt.Sprintf("Delete all %d sessions", count), confirmed); err != nil {
		return err
	}
	if _, err := a.Sessions.Clear(); err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("sessions clear", map[string]int{"deleted": count})
	}
	a.info("%s Deleted %d session(s)", RenderStatus("deleted"), count)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
