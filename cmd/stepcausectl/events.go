package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/stepcause/internal/consumer"
	"example.com/stepcause/internal/events"
)

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read events published by the outbox dispatcher",
	}

	var (
		topic   string
		groupID string
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events from a topic until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers := a.cfg.KafkaBrokerList()
			if len(brokers) == 0 {
				return errors.New("KAFKA_BROKERS is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:         brokers,
				GroupID:         groupID,
				Topic:           topic,
				MinBytes:        1e3,
				MaxBytes:        10e6,
				CommitInterval:  time.Second,
				ReadLagInterval: -1,
			})
			defer reader.Close()

			a.logger.Info("tailing events", zap.String("topic", topic), zap.String("group", groupID))
			err := consumer.NewProcessor(reader, consumer.NewTailHandler(cmd.OutOrStdout()), a.logger).Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("tail %s: %w", topic, err)
			}
			return nil
		},
	}
	tail.Flags().StringVar(&topic, "topic", events.TopicStepsAttributed, "Topic to read")
	tail.Flags().StringVar(&groupID, "group", "stepcausectl-tail", "Consumer group ID")

	cmd.AddCommand(tail)
	return cmd
}
