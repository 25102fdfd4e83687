package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
)

var base = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func appt(providerID string, start time.Time, d time.Duration) domain.Appointment {
	return domain.Appointment{
		ProviderID:     providerID,
		BookedByUserID: "u1",
		PatientID:      "pat1",
		LocationID:     "loc1",
		StartTime:      start,
		EndTime:        start.Add(d),
		Status:         domain.StatusScheduled,
	}
}

func TestCalendar_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()

	var created []domain.Appointment
	err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		var err error
		created, err = tx.CreateAppointments(ctx, []domain.Appointment{
			appt("p1", base, 30*time.Minute),
			appt("p1", base.Add(time.Hour), 30*time.Minute),
		})
		return err
	})
	if err != nil {
		t.Fatalf("InProviderTransaction error: %v", err)
	}
	if len(created) != 2 || created[0].ID == uuid.Nil || created[0].CreatedAt.IsZero() {
		t.Fatalf("created = %+v, want two stamped rows", created)
	}

	rows, err := c.ListAppointments(ctx, "p1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(rows) != 2 || !rows[0].StartTime.Equal(base) {
		t.Fatalf("rows = %+v, want two ordered rows", rows)
	}
}

func TestCalendar_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()
	boom := errors.New("boom")

	err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		if _, err := tx.CreateAppointments(ctx, []domain.Appointment{appt("p1", base, time.Hour)}); err != nil {
			return err
		}
		if _, err := tx.CreateBlock(ctx, domain.Block{ProviderID: "p1", StartTime: base, EndTime: base.Add(time.Hour)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	rows, _ := c.ListAppointments(ctx, "p1", base.Add(-time.Hour), base.Add(time.Hour))
	blocks, _ := c.ListBlocks(ctx, "p1", base.Add(-time.Hour), base.Add(time.Hour))
	if len(rows) != 0 || len(blocks) != 0 {
		t.Fatalf("rolled back tx leaked rows: appts=%d blocks=%d", len(rows), len(blocks))
	}
}

func TestCalendar_CreateAppointmentsEnforcesConstraints(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()

	err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.CreateAppointments(ctx, []domain.Appointment{
			appt("p1", base, time.Hour),
			appt("p1", base.Add(30*time.Minute), time.Hour),
		})
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlapping batch err = %v, want %v", err, store.ErrConflict)
	}

	first := appt("p1", base, time.Hour)
	first.ID = uuid.MustParse("00000000-0000-0000-0000-000000000901")
	err = c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.CreateAppointments(ctx, []domain.Appointment{first})
		return err
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	dup := appt("p1", base.Add(2*time.Hour), time.Hour)
	dup.ID = first.ID
	err = c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.CreateAppointments(ctx, []domain.Appointment{dup})
		return err
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("duplicate id err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	cancelled := appt("p1", base, time.Hour)
	cancelled.Status = domain.StatusCancelled
	err = c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.CreateAppointments(ctx, []domain.Appointment{cancelled})
		return err
	})
	if err != nil {
		t.Fatalf("cancelled rows must not collide: %v", err)
	}
}

func TestCalendar_TxSeesOwnWritesAndOtherProviders(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()

	var other domain.Appointment
	_ = c.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.CalendarTx) error {
		rows, err := tx.CreateAppointments(ctx, []domain.Appointment{appt("p2", base, time.Hour)})
		if err == nil {
			other = rows[0]
		}
		return err
	})

	err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		rows, err := tx.CreateAppointments(ctx, []domain.Appointment{appt("p1", base, time.Hour)})
		if err != nil {
			return err
		}
		if _, err := tx.GetAppointment(ctx, rows[0].ID); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, "p1", rows[0].ID); err != nil {
			return err
		}
		if _, err := tx.GetAppointment(ctx, rows[0].ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("deleted row visible: %v", err)
		}
		got, err := tx.GetAppointment(ctx, other.ID)
		if err != nil {
			return err
		}
		if got.ProviderID != "p2" {
			t.Errorf("other provider row = %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func TestCalendar_SerializesSameProvider(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()

	const writers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
				existing, err := tx.ListAppointments(ctx, "p1", base, base.Add(time.Hour))
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return store.ErrConflict
				}
				time.Sleep(time.Millisecond)
				_, err = tx.CreateAppointments(ctx, []domain.Appointment{appt("p1", base, time.Hour)})
				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
}

func TestCalendar_RejectsCancelledContext(t *testing.T) {
	c := NewCalendar()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Fatalf("fn must not run on a cancelled context")
	}
}

func TestCalendar_StagedEventsFollowTheTransaction(t *testing.T) {
	ctx := context.Background()
	c := NewCalendar()

	ev, err := events.New(events.TypeAppointmentBooked, "a1", "p1", map[string]string{"id": "a1"})
	if err != nil {
		t.Fatalf("events.New error: %v", err)
	}

	boom := errors.New("boom")
	err = c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		if err := tx.StageEvents(ctx, ev); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := c.Events(); len(got) != 0 {
		t.Fatalf("events after rollback = %d, want 0", len(got))
	}

	err = c.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.CalendarTx) error {
		return tx.StageEvents(ctx, ev)
	})
	if err != nil {
		t.Fatalf("InProviderTransaction error: %v", err)
	}
	got := c.Events()
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("events after commit = %+v, want the staged event", got)
	}
}
