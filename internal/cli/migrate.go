package cli

import (
	"github.com/spf13/cobra"

	"habitStreakAPI/internal/logger"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context(), rootOpts.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger.Info("schema is up to date")
			return nil
		},
	}
}
