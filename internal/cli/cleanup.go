package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCleanupCmd creates the cleanup command
func NewCleanupCmd(env *Env) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove sessions idle for longer than a given age",
		Long: `Remove sessions whose last activity is older than --older-than.

Defaults to the configured session TTL. Stores that expire sessions on their
own (Redis) are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if svc.Store.NativeTTL() {
				fmt.Fprintln(cmd.OutOrStdout(), "The session store expires sessions natively; nothing to do.")
				return nil
			}

			var removed int
			if olderThan > 0 {
				removed, err = svc.Store.ExpireStale(cmd.Context(), time.Now().Add(-olderThan))
			} else {
				removed, err = svc.Janitor.Sweep(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s).\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Idle age to expire (default: store.session_ttl)")
	return cmd
}
