// Package outbox relays committed booking events from the outbox table to
// Kafka.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/telemetry"
)

const (
	defaultPollEvery   = 2 * time.Second
	defaultBatchSize   = 50
	defaultBackoff     = 5 * time.Second
	maxBackoff         = 10 * time.Minute
	defaultMaxAttempts = 8
)

// MessageWriter is the part of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	TopicPrefix string
	PollEvery   time.Duration
	BatchSize   int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff     time.Duration
	MaxAttempts int
}

type Relay struct {
	outbox store.Outbox
	writer MessageWriter
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func NewRelay(outbox store.Outbox, writer MessageWriter, logger *slog.Logger, cfg Config) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = defaultPollEvery
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		outbox: outbox,
		writer: writer,
		logger: logger.With("component", "outbox_relay"),
		cfg:    cfg,
		now:    time.Now,
	}
}

// NewKafkaWriter builds a writer that routes each message by its own topic
// and keys partitions by aggregate id.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Run drains the outbox every poll interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollEvery)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "poll_every", r.cfg.PollEvery, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("outbox drain failed", "err", err)
			}
		}
	}
}

// RunOnce claims and delivers one batch.
func (r *Relay) RunOnce(ctx context.Context) (store.DrainStats, error) {
	stats, err := r.outbox.Drain(ctx, r.cfg.BatchSize, r.deliver)
	if err != nil {
		return stats, err
	}
	if stats.Claimed > 0 {
		r.logger.Info("outbox batch relayed",
			"claimed", stats.Claimed,
			"published", stats.Published,
			"retried", stats.Retried,
			"dead", stats.Dead,
		)
	}
	return stats, nil
}

func (r *Relay) deliver(ctx context.Context, rec store.OutboxRecord) store.DeliveryOutcome {
	msgCtx := telemetry.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msg := r.message(msgCtx, r.cfg.TopicPrefix+rec.EventType, rec)

	err := r.writer.WriteMessages(ctx, msg)
	if err == nil {
		return store.DeliveryOutcome{}
	}

	attempts := rec.Attempts + 1
	log := r.logger.With("event_id", rec.EventID, "event_type", rec.EventType, "attempt", attempts)
	if attempts < r.cfg.MaxAttempts {
		retry := r.now().Add(r.backoff(attempts))
		log.Warn("event delivery failed; will retry", "err", err, "retry_at", retry)
		return store.DeliveryOutcome{Err: err, Retry: retry}
	}

	dead := r.message(msgCtx, r.deadLetterTopic(), rec)
	dead.Headers = append(dead.Headers, kafka.Header{Key: "last_error", Value: []byte(err.Error())})
	if dlqErr := r.writer.WriteMessages(ctx, dead); dlqErr != nil {
		log.Error("dead-letter publish failed", "err", dlqErr)
	}
	log.Error("event dead-lettered", "err", err)
	return store.DeliveryOutcome{Err: err}
}

func (r *Relay) message(ctx context.Context, topic string, rec store.OutboxRecord) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(rec.AggregateID),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID.String())},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

func (r *Relay) deadLetterTopic() string {
	return r.cfg.TopicPrefix + "appointment.dlq"
}

// backoff doubles the base delay per failed attempt, capped at maxBackoff.
func (r *Relay) backoff(attempts int) time.Duration {
	d := r.cfg.Backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
