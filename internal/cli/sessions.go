package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/services"
)

// NewSessionsCmd creates the sessions command group
func NewSessionsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show, search and delete stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd(env))
	cmd.AddCommand(newSessionsShowCmd(env))
	cmd.AddCommand(newSessionsSearchCmd(env))
	cmd.AddCommand(newSessionsDeleteCmd(env))

	return cmd
}

func newSessionsListCmd(env *Env) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			sessions, err := svc.Chat.ListSessions(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMESSAGES\tLAST ACTIVITY\tDESTINATION")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ID, s.MessageCount, s.LastActivity.Format(time.RFC3339), s.ContextSummary.Destination)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", services.DefaultUserID, "User id")
	return cmd
}

func newSessionsShowCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's messages and context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			history, err := svc.Chat.History(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(history)
		},
	}
}

func newSessionsSearchCmd(env *Env) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "search <term>...",
		Short: "Rank a user's sessions by how often they mention the terms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			results, err := svc.Chat.SearchSessions(cmd.Context(), userID, args)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSCORE\tCONTEXT\tMESSAGES")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.ID, r.RelevanceScore, r.SearchMatches.ContextMatches, r.SearchMatches.MessageMatches)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", services.DefaultUserID, "User id")
	return cmd
}

func newSessionsDeleteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			deleted, err := svc.Chat.DeleteSessions(cmd.Context(), args)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d of %d session(s).\n", deleted, len(args))
			return err
		},
	}
}
