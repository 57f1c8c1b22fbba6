package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/openrecords-api/internal/app"
)

func newSweepCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate Due Soon and Overdue statuses once",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseNow(at, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Sweeper.RunStatusSweep(cmd.Context(), now)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "evaluate as of this RFC3339 instant instead of the current time")
	return cmd
}

func parseNow(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now must be RFC3339: %w", err)
	}
	return t, nil
}
