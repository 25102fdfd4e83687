// Package memory is an in-process calendar store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
)

// Calendar keeps every row in maps. Writers of one provider are serialized
// by a per-provider mutex; a transaction works on a private copy of that
// provider's rows and swaps it in only when fn succeeds.
type Calendar struct {
	now func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu           sync.RWMutex
	windows      map[uuid.UUID]domain.AvailabilityWindow
	blocks       map[uuid.UUID]domain.Block
	appointments map[uuid.UUID]domain.Appointment
	outbox       []events.Event
}

func NewCalendar() *Calendar {
	return &Calendar{
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
		windows:      make(map[uuid.UUID]domain.AvailabilityWindow),
		blocks:       make(map[uuid.UUID]domain.Block),
		appointments: make(map[uuid.UUID]domain.Appointment),
	}
}

var _ store.Calendar = (*Calendar)(nil)

func (c *Calendar) providerLock(providerID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[providerID] = l
	}
	return l
}

func (c *Calendar) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := c.providerLock(providerID)
	l.Lock()
	defer l.Unlock()

	tx := c.begin(providerID)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.commit(tx)
	return nil
}

func (c *Calendar) begin(providerID string) *calendarTx {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tx := &calendarTx{
		parent:       c,
		providerID:   providerID,
		windows:      make(map[uuid.UUID]domain.AvailabilityWindow),
		blocks:       make(map[uuid.UUID]domain.Block),
		appointments: make(map[uuid.UUID]domain.Appointment),
	}
	for id, w := range c.windows {
		if w.ProviderID == providerID {
			tx.windows[id] = w
		}
	}
	for id, b := range c.blocks {
		if b.ProviderID == providerID {
			tx.blocks[id] = b
		}
	}
	for id, a := range c.appointments {
		if a.ProviderID == providerID {
			tx.appointments[id] = cloneAppointment(a)
		}
	}
	return tx
}

func (c *Calendar) commit(tx *calendarTx) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, w := range c.windows {
		if w.ProviderID == tx.providerID {
			delete(c.windows, id)
		}
	}
	for id, b := range c.blocks {
		if b.ProviderID == tx.providerID {
			delete(c.blocks, id)
		}
	}
	for id, a := range c.appointments {
		if a.ProviderID == tx.providerID {
			delete(c.appointments, id)
		}
	}
	for id, w := range tx.windows {
		c.windows[id] = w
	}
	for id, b := range tx.blocks {
		c.blocks[id] = b
	}
	for id, a := range tx.appointments {
		c.appointments[id] = a
	}
	c.outbox = append(c.outbox, tx.staged...)
}

// Events returns the events staged by committed transactions, oldest first.
func (c *Calendar) Events() []events.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]events.Event, len(c.outbox))
	copy(out, c.outbox)
	return out
}

func (c *Calendar) ListAvailability(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return listAvailability(c.windows, providerID, day), nil
}

func (c *Calendar) ListBlocks(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return listBlocks(c.blocks, providerID, windowStart, windowEnd), nil
}

func (c *Calendar) ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return listAppointments(c.appointments, providerID, windowStart, windowEnd), nil
}

func (c *Calendar) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.appointments[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return cloneAppointment(a), nil
}

func listAvailability(rows map[uuid.UUID]domain.AvailabilityWindow, providerID string, day time.Weekday) []domain.AvailabilityWindow {
	var out []domain.AvailabilityWindow
	for _, w := range rows {
		if w.ProviderID == providerID && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].EndTime < out[j].EndTime
	})
	return out
}

func listBlocks(rows map[uuid.UUID]domain.Block, providerID string, windowStart, windowEnd time.Time) []domain.Block {
	var out []domain.Block
	for _, b := range rows {
		if b.ProviderID == providerID && b.Overlaps(windowStart, windowEnd) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func listAppointments(rows map[uuid.UUID]domain.Appointment, providerID string, windowStart, windowEnd time.Time) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range rows {
		if a.ProviderID == providerID && domain.Overlaps(a.StartTime, a.EndTime, windowStart, windowEnd) {
			out = append(out, cloneAppointment(a))
		}
	}
	sortAppointments(out)
	return out
}

func sortAppointments(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
}

func cloneAppointment(a domain.Appointment) domain.Appointment {
	if a.Recurrence != nil {
		r := *a.Recurrence
		a.Recurrence = &r
	}
	return a
}
