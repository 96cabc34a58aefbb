// Command stepcausectl carries the operator tasks for the step attribution
// service: schema migrations, dead-letter replay, event tailing and local
// bearer tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/stepcause/internal/config"
	"example.com/stepcause/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "stepcausectl",
		Short:         "Operate the stepcause service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newDLQCmd(a))
	root.AddCommand(newEventsCmd(a))
	root.AddCommand(newTokenCmd(a))
	return root
}

// context returns a context bounded by --timeout and cancelled on SIGINT/SIGTERM.
func (a *app) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
