package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OutboxRecord is a booking event waiting to be relayed to the message bus.
type OutboxRecord struct {
	bun.BaseModel `bun:"table:outbox_events"`

	ID            int64           `bun:"id,pk,autoincrement"`
	EventID       uuid.UUID       `bun:"event_id,notnull,type:uuid"`
	EventType     string          `bun:"event_type,notnull"`
	AggregateID   string          `bun:"aggregate_id,notnull"`
	Payload       json.RawMessage `bun:"payload,notnull,type:jsonb"`
	Traceparent   string          `bun:"traceparent,nullzero"`
	Tracestate    string          `bun:"tracestate,nullzero"`
	Attempts      int             `bun:"attempts,notnull"`
	NextAttemptAt time.Time       `bun:"next_attempt_at,notnull"`
	LastError     string          `bun:"last_error,nullzero"`
	PublishedAt   *time.Time      `bun:"published_at"`
	DeadAt        *time.Time      `bun:"dead_at"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
}

// DeliveryOutcome tells the outbox what happened to one record.
type DeliveryOutcome struct {
	Err error
	// Retry is when to try again; zero means the record is dead-lettered.
	Retry time.Time
}

// Outbox is drained by the relay worker. Deliver is invoked once per claimed
// record; a nil error marks it published.
type Outbox interface {
	Drain(ctx context.Context, limit int, deliver func(ctx context.Context, rec OutboxRecord) DeliveryOutcome) (DrainStats, error)
}

type DrainStats struct {
	Claimed   int
	Published int
	Retried   int
	Dead      int
}
