package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clinicsched/backend/internal/config"
	"clinicsched/backend/internal/store/postgres"
	"clinicsched/backend/internal/telemetry"
	"clinicsched/backend/internal/worker/outbox"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay booking events from the outbox to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cfg, log)
		},
	}
}

func runRelay(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return errors.New("relay requires storage.driver=postgres")
	}
	brokers := outbox.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName + "-relay",
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if err := outbox.ReadyCheck(brokers)(ctx); err != nil {
		log.Warn("kafka not reachable yet; relay will keep retrying", slog.Any("err", err))
	}

	writer := outbox.NewKafkaWriter(brokers)
	defer func() {
		if err := writer.Close(); err != nil {
			log.Warn("kafka writer close failed", slog.Any("err", err))
		}
	}()

	relay := outbox.NewRelay(postgres.NewOutboxRepo(db), writer, log, outbox.Config{
		TopicPrefix: cfg.KafkaTopicPrefix,
		PollEvery:   cfg.OutboxPollEvery,
		BatchSize:   cfg.OutboxBatchSize,
		Backoff:     cfg.OutboxBackoff,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})
	return relay.Run(ctx)
}
