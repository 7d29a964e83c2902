package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comigor/lumina/internal/session"
	"github.com/comigor/lumina/internal/transcript"
)

const chatHelp = `Start an interactive chat session.

Type a message to send it. Commands:
  /new                  start a new conversation
  /list [query]         list conversations, optionally filtered by title
  /select <id>          switch to a conversation
  /rename <id> <title>  rename a conversation
  /delete <id>          delete a conversation
  /clear                delete every conversation on this device
  /help                 show this help
  /quit                 leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  chatHelp,
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	a := newApp(cfg, cmd.OutOrStdout())
	defer a.Close()

	ctx := cmd.Context()
	if a.history != nil {
		if err := a.history.Run(ctx, a.ctrl); err != nil {
			fmt.Fprintln(a.out, "Could not load your history:", err)
		}
	}
	a.printActive()
	return a.repl(ctx, cmd.InOrStdin())
}

func (a *app) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		if quit := a.handle(ctx, scanner.Text()); quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handle runs one input line and reports whether the user asked to leave.
func (a *app) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return false
	}

	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(a.out, chatHelp)
	case "/new":
		if err := a.ctrl.NewChat(); err != nil {
			a.report(err)
			return false
		}
		fmt.Fprintln(a.out, "New conversation.")
	case "/clear":
		if err := a.ctrl.Clear(); err != nil {
			a.report(err)
			return false
		}
		fmt.Fprintln(a.out, "All conversations cleared.")
	case "/list":
		a.list(rest)
	case "/select":
		if err := a.ctrl.Select(rest); err != nil {
			a.report(err)
			return false
		}
		a.printActive()
	case "/rename":
		id, title, _ := strings.Cut(rest, " ")
		got, err := a.ctrl.Rename(id, title)
		if err != nil {
			a.report(err)
			return false
		}
		fmt.Fprintf(a.out, "Renamed %s to %q.\n", id, got)
	case "/delete":
		if err := a.ctrl.Delete(rest); err != nil {
			a.report(err)
			return false
		}
		fmt.Fprintf(a.out, "Deleted %s.\n", rest)
	default:
		fmt.Fprintf(a.out, "Unknown command %s; try /help.\n", name)
	}
	return false
}

func (a *app) send(ctx context.Context, text string) {
	fmt.Fprint(a.out, "Thinking...\r")
	res, err := a.ctrl.Send(ctx, text)
	if errors.Is(err, session.ErrBlankInput) {
		return
	}
	if err != nil {
		a.report(err)
		return
	}
	if res.Dropped {
		fmt.Fprintln(a.out, "(the conversation was deleted before the reply arrived)")
		return
	}
	a.printMessage(res.Reply)
}

func (a *app) list(query string) {
	convs := a.store.Filter(query)
	if len(convs) == 0 {
		fmt.Fprintln(a.out, "No conversations.")
		return
	}
	active := a.ctrl.Snapshot().ActiveID
	for _, c := range convs {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %-12s %-38s %s\n", marker, c.ID, c.Title, c.LastActivityLabel)
	}
}

func (a *app) printActive() {
	snap := a.ctrl.Snapshot()
	if snap.ActiveID == transcript.PendingID {
		return
	}
	if conv, ok := a.store.Conversation(snap.ActiveID); ok {
		fmt.Fprintf(a.out, "== %s ==\n", conv.Title)
	}
	for _, m := range snap.Messages {
		a.printMessage(m)
	}
}

func (a *app) printMessage(m transcript.Message) {
	label := "AI"
	if m.Role == transcript.RoleUser {
		label = a.creds.Identity().Initials()
	}
	fmt.Fprintf(a.out, "[%s] %s\n", label, m.Content)
}

func (a *app) report(err error) {
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
	}
}
