package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/database"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down>",
		Short: "Apply or roll back the Postgres session store schema",
		Long: `Apply pending schema migrations (up) or roll back the most recent one (down)
against the database configured in the database section. The server applies
pending migrations on start, so this is only needed for manual rollbacks or
for preparing a database ahead of a deploy.`,
		ValidArgs: []string{"up", "down"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			dsn := database.GetDSN(cfg.Database)

			switch args[0] {
			case "up":
				err = database.RunMigrations(dsn)
			case "down":
				err = database.RollbackMigration(dsn)
			}
			if err != nil {
				return err
			}

			logger.WithField("direction", args[0]).Info("Migration finished")
			fmt.Fprintf(cmd.OutOrStdout(), "Migration %s complete.\n", args[0])
			return nil
		},
	}
}
