package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/graphrag/internal/state"
	"github.com/user/graphrag/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored conversations",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.NewFileStore(cfg.DataDir)

		list, err := store.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tCREATED\tLAST ACTIVE")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.ID,
				s.UserID,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.LastActiveAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the most recent messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.NewFileStore(cfg.DataDir)
		ctx := context.Background()

		id := types.SessionID(args[0])
		session, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}

		messages, err := store.RecentMessages(ctx, id, 50)
		if err != nil {
			return fmt.Errorf("read messages: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Session %s (created %s)\n\n", session.ID, session.CreatedAt.Format("2006-01-02 15:04:05"))
		for _, m := range messages {
			fmt.Fprintf(os.Stdout, "[%d] %s: %s\n", m.Seq, m.Role, m.Content)
		}
		return nil
	},
}
