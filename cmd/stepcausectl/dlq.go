package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/stepcause/internal/outbox"
)

func newDLQCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered outbox events",
	}

	var limit int
	requeue := &cobra.Command{
		Use:   "requeue",
		Short: "Move dead-lettered events back into the outbox",
		Long: `Moves up to --limit rows from outbox_dlq back into outbox.

The running dispatcher picks them up on its next poll.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context()
			defer cancel()

			pool, err := pgxpool.New(ctx, a.cfg.PostgresURL)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			moved, err := outbox.NewPostgresStore(pool).Requeue(ctx, limit)
			if err != nil {
				return err
			}
			a.logger.Info("dead letters requeued", zap.Int("count", moved))
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d event(s)\n", moved)
			return nil
		},
	}
	requeue.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to move")

	cmd.AddCommand(requeue)
	return cmd
}
