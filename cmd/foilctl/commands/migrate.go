package commands

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/openrecords-api/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	var (
		steps int
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "migrate applies every pending migration, or --steps of them. Negative steps roll back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := environment()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			if dir == "" {
				dir = cfg.Database.MigrationsDir
			}

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db, dir, steps); err != nil {
				return err
			}
			logr.Sugar().Infow("migrations applied", "dir", dir, "steps", steps)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply; 0 applies all")
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to DB_MIGRATIONS_DIR)")
	return cmd
}
