package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/openrecords-api/internal/app"
)

func newResetCountersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-counters",
		Short: "Restart every agency's request sequence at 1",
		Long: `reset-counters performs the January 1 reset by hand. Each agency gets an
AGENCY_COUNTER_RESET event recorded without an acting user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				resets, err := a.Agencies.ResetRequestCounters(cmd.Context(), "")
				if err != nil {
					return err
				}
				for _, r := range resets {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d -> %d\n", r.AgencyEIN, r.Previous, r.Next)
				}
				return nil
			})
		},
	}
}
