package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustkissvdb/kissrag/internal/memory"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with stored history",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session's history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}

	items, err := d.client.StateList(cmd.Context(), "chat:", 200)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		cmd.Println("No stored sessions.")
		return nil
	}

	for _, item := range items {
		session := strings.TrimSuffix(strings.TrimPrefix(item.Key, "chat:"), ":history")
		cmd.Printf("%s\t(revision %d)\n", session, item.Revision)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}

	history, err := memory.Open(cmd.Context(), d.client, args[0], d.logger)
	if err != nil {
		return err
	}
	messages, err := history.Load(cmd.Context())
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		cmd.Println("Session is empty.")
		return nil
	}
	for _, m := range messages {
		cmd.Printf("%s: %s\n", m.Role, m.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}

	deleted, err := d.client.StateDelete(cmd.Context(), memory.Key(args[0]))
	if err != nil {
		return err
	}
	if !deleted {
		cmd.Printf("No history stored for session %q.\n", args[0])
		return nil
	}
	cmd.Printf("Deleted session %q.\n", args[0])
	return nil
}
