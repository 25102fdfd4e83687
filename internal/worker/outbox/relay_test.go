package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"clinicsched/backend/internal/store"
)

type fakeOutbox struct {
	records  []store.OutboxRecord
	outcomes []store.DeliveryOutcome
	drainErr error
}

func (f *fakeOutbox) Drain(ctx context.Context, limit int, deliver func(ctx context.Context, rec store.OutboxRecord) store.DeliveryOutcome) (store.DrainStats, error) {
	if f.drainErr != nil {
		return store.DrainStats{}, f.drainErr
	}
	var stats store.DrainStats
	for i, rec := range f.records {
		if i == limit {
			break
		}
		stats.Claimed++
		out := deliver(ctx, rec)
		f.outcomes = append(f.outcomes, out)
		switch {
		case out.Err == nil:
			stats.Published++
		case out.Retry.IsZero():
			stats.Dead++
		default:
			stats.Retried++
		}
	}
	return stats, nil
}

type fakeWriter struct {
	writeFn func(msg kafka.Message) error
	written []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.writeFn == nil {
		panic("writeFn not configured")
	}
	for _, m := range msgs {
		if err := f.writeFn(m); err != nil {
			return err
		}
		f.written = append(f.written, m)
	}
	return nil
}

func record(eventType string, attempts int) store.OutboxRecord {
	return store.OutboxRecord{
		ID:          1,
		EventID:     uuid.New(),
		EventType:   eventType,
		AggregateID: uuid.NewString(),
		Payload:     json.RawMessage(`{"status":"scheduled"}`),
		Attempts:    attempts,
	}
}

func newTestRelay(ob store.Outbox, w MessageWriter) *Relay {
	r := NewRelay(ob, w, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		TopicPrefix: "clinic.",
		Backoff:     time.Second,
		MaxAttempts: 3,
	})
	r.now = func() time.Time { return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) }
	return r
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelay_PublishesWithTopicPrefixAndHeaders(t *testing.T) {
	rec := record("appointment.booked.v1", 0)
	ob := &fakeOutbox{records: []store.OutboxRecord{rec}}
	w := &fakeWriter{writeFn: func(kafka.Message) error { return nil }}

	stats, err := newTestRelay(ob, w).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if stats.Published != 1 {
		t.Fatalf("stats = %+v, want one published", stats)
	}
	if len(w.written) != 1 {
		t.Fatalf("written = %d, want 1", len(w.written))
	}
	msg := w.written[0]
	if msg.Topic != "clinic.appointment.booked.v1" {
		t.Fatalf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != rec.AggregateID {
		t.Fatalf("key = %q, want %q", msg.Key, rec.AggregateID)
	}
	if header(msg, "event_id") != rec.EventID.String() || header(msg, "event_type") != rec.EventType {
		t.Fatalf("headers = %+v", msg.Headers)
	}
}

func TestRelay_RetriesWithBackoff(t *testing.T) {
	ob := &fakeOutbox{records: []store.OutboxRecord{record("appointment.cancelled.v1", 1)}}
	w := &fakeWriter{writeFn: func(kafka.Message) error { return errors.New("leader not available") }}

	stats, err := newTestRelay(ob, w).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("stats = %+v, want one retried", stats)
	}
	want := time.Date(2026, 1, 5, 8, 0, 2, 0, time.UTC)
	if got := ob.outcomes[0].Retry; !got.Equal(want) {
		t.Fatalf("retry = %v, want %v", got, want)
	}
}

func TestRelay_DeadLettersAfterMaxAttempts(t *testing.T) {
	rec := record("appointment.deleted.v1", 2)
	ob := &fakeOutbox{records: []store.OutboxRecord{rec}}
	w := &fakeWriter{writeFn: func(m kafka.Message) error {
		if m.Topic == "clinic.appointment.dlq" {
			return nil
		}
		return errors.New("broker down")
	}}

	stats, err := newTestRelay(ob, w).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if stats.Dead != 1 {
		t.Fatalf("stats = %+v, want one dead", stats)
	}
	if !ob.outcomes[0].Retry.IsZero() {
		t.Fatalf("dead outcome must not carry a retry time")
	}
	if len(w.written) != 1 || w.written[0].Topic != "clinic.appointment.dlq" {
		t.Fatalf("written = %+v, want the dead-letter message", w.written)
	}
	if header(w.written[0], "last_error") != "broker down" {
		t.Fatalf("last_error header = %q", header(w.written[0], "last_error"))
	}
}

func TestRelay_DrainErrorIsReturned(t *testing.T) {
	ob := &fakeOutbox{drainErr: errors.New("db gone")}
	if _, err := newTestRelay(ob, &fakeWriter{}).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected drain error")
	}
}

func TestRelay_BackoffIsCapped(t *testing.T) {
	r := newTestRelay(&fakeOutbox{}, &fakeWriter{})
	if got := r.backoff(1); got != time.Second {
		t.Fatalf("backoff(1) = %v, want 1s", got)
	}
	if got := r.backoff(4); got != 8*time.Second {
		t.Fatalf("backoff(4) = %v, want 8s", got)
	}
	if got := r.backoff(40); got != maxBackoff {
		t.Fatalf("backoff(40) = %v, want %v", got, maxBackoff)
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("1")}})
	msg := kafka.Message{Headers: headers}
	if got := header(msg, "traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", got)
	}
	if header(msg, "event_id") != "1" {
		t.Fatalf("existing headers lost: %+v", headers)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("SplitBrokers = %v", got)
	}
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
