package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/comigor/lumina/internal/config"
)

// historyCmd prints the conversations stored on the server
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the conversations stored on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, cmd.OutOrStdout())
		defer a.Close()
		if a.history == nil {
			return fmt.Errorf("the %s backend keeps no history", config.BackendOpenAI)
		}
		if a.gate.Token() == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in; no history to show.")
			return nil
		}
		if err := a.history.Run(cmd.Context(), a.ctrl); err != nil {
			return err
		}
		snap := a.ctrl.Snapshot()
		total := 0
		for _, c := range snap.Conversations {
			n := len(snap.MessagesByConversation[c.ID])
			total += n
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-38s %-14s %s messages\n", c.ID, c.Title, c.LastActivityLabel, humanize.Comma(int64(n)))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s conversations, %s messages\n",
			humanize.Comma(int64(len(snap.Conversations))), humanize.Comma(int64(total)))
		return nil
	},
}
