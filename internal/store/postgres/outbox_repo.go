package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/telemetry"
)

// OutboxRepo hands events staged by calendar transactions back to the relay
// worker in claim batches.
type OutboxRepo struct {
	db  *bun.DB
	now func() time.Time
}

func NewOutboxRepo(db *bun.DB) *OutboxRepo {
	return &OutboxRepo{db: db, now: time.Now}
}

var _ store.Outbox = (*OutboxRepo)(nil)

// insertOutbox writes one outbox row per event using db, which is the open
// calendar transaction when called from StageEvents.
func insertOutbox(ctx context.Context, db bun.IDB, now time.Time, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	traceparent, tracestate := telemetry.TraceContextStrings(ctx)
	now = now.UTC()

	rows := make([]store.OutboxRecord, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, store.OutboxRecord{
			EventID:       ev.ID,
			EventType:     ev.Type,
			AggregateID:   ev.AggregateID,
			Payload:       ev.Payload,
			Traceparent:   traceparent,
			Tracestate:    tracestate,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}
	_, err := db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

// Drain claims up to limit due records with FOR UPDATE SKIP LOCKED, so
// several relays can run side by side, and records each delivery outcome
// in the same transaction.
func (r *OutboxRepo) Drain(ctx context.Context, limit int, deliver func(ctx context.Context, rec store.OutboxRecord) store.DeliveryOutcome) (store.DrainStats, error) {
	var stats store.DrainStats
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var records []store.OutboxRecord
		err := tx.NewSelect().
			Model(&records).
			Where("published_at IS NULL").
			Where("dead_at IS NULL").
			Where("next_attempt_at <= ?", r.now().UTC()).
			OrderExpr("id ASC").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		stats.Claimed = len(records)

		for _, rec := range records {
			outcome := deliver(ctx, rec)
			q := tx.NewUpdate().Model((*store.OutboxRecord)(nil)).Where("id = ?", rec.ID)
			now := r.now().UTC()
			switch {
			case outcome.Err == nil:
				q = q.Set("published_at = ?", now)
				stats.Published++
			case outcome.Retry.IsZero():
				q = q.Set("attempts = attempts + 1").
					Set("last_error = ?", outcome.Err.Error()).
					Set("dead_at = ?", now)
				stats.Dead++
			default:
				q = q.Set("attempts = attempts + 1").
					Set("last_error = ?", outcome.Err.Error()).
					Set("next_attempt_at = ?", outcome.Retry.UTC())
				stats.Retried++
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}
