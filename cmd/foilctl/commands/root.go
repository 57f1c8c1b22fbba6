package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/app"
	"github.com/noah-isme/openrecords-api/pkg/config"
	"github.com/noah-isme/openrecords-api/pkg/logger"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "foilctl",
		Short: "Operator tasks for the OpenRecords API",
		Long: `foilctl runs maintenance tasks against the OpenRecords database using the
same environment configuration as the API server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newSweepCmd(), newResetCountersCmd(), newMigrateCmd(), newSeedRolesCmd())
	return root
}

// Execute runs the command tree.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// environment loads config and logger for a command.
func environment() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, logr, err := environment()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()
	// post-commit hooks run so sweep digests still publish; the scheduler does not
	a.Hooks.Start(ctx)
	return fn(a)
}
