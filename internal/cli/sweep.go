package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"habitStreakAPI/internal/calendar"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close streaks that have gone stale",
		Long: `Close every open streak whose last completion is at least the
missed-day threshold behind the given date. Running it twice for the same
date changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			date := a.streaks.Today()
			if asOf != "" {
				if date, err = calendar.Parse(asOf); err != nil {
					return err
				}
			}

			report, err := a.closer.CloseStaleStreaks(cmd.Context(), date)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep date as YYYY-MM-DD (default today)")
	return cmd
}
