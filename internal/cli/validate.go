package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"habitStreakAPI/internal/streak"
)

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var key streak.HabitKey

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check one habit's streaks against its log and repair them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key.OwnerID == "" || key.HabitID == "" {
				return fmt.Errorf("--owner and --habit are required")
			}

			a, err := newApp(cmd.Context(), rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.validator.Validate(cmd.Context(), key, a.streaks.Today())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&key.OwnerID, "owner", "", "owner (Clerk user) ID")
	cmd.Flags().StringVar(&key.HabitID, "habit", "", "habit ID")
	return cmd
}
