package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	"github.com/noah-isme/openrecords-api/pkg/database"
)

func newSeedRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-roles",
		Short: "Write the built-in permission role presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := environment()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.NewRoleRepository(db).Upsert(cmd.Context(), permission.Roles); err != nil {
				return err
			}
			for _, role := range permission.Roles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", role.Name, role.Permissions)
			}
			return nil
		},
	}
}
