package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/stepcause/internal/db/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations",
	}
	for _, direction := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: "Run migrations " + direction,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.Run(a.cfg.PostgresURL, direction); err != nil {
					return err
				}
				a.logger.Info("migrations applied", zap.String("direction", direction))
				return nil
			},
		})
	}
	return cmd
}
