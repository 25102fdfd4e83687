package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
)

type calendarTx struct {
	parent     *Calendar
	providerID string

	windows      map[uuid.UUID]domain.AvailabilityWindow
	blocks       map[uuid.UUID]domain.Block
	appointments map[uuid.UUID]domain.Appointment
	staged       []events.Event
}

func (t *calendarTx) ListAvailability(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	if providerID != t.providerID {
		return t.parent.ListAvailability(ctx, providerID, day)
	}
	return listAvailability(t.windows, providerID, day), nil
}

func (t *calendarTx) ListBlocks(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error) {
	if providerID != t.providerID {
		return t.parent.ListBlocks(ctx, providerID, windowStart, windowEnd)
	}
	return listBlocks(t.blocks, providerID, windowStart, windowEnd), nil
}

func (t *calendarTx) ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if providerID != t.providerID {
		return t.parent.ListAppointments(ctx, providerID, windowStart, windowEnd)
	}
	return listAppointments(t.appointments, providerID, windowStart, windowEnd), nil
}

func (t *calendarTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.appointments[appointmentID]; ok {
		return cloneAppointment(a), nil
	}
	a, err := t.parent.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	// Rows of the locked provider live in the private copy; a committed row
	// missing from it was deleted in this transaction.
	if a.ProviderID == t.providerID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *calendarTx) GetAvailability(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error) {
	w, ok := t.windows[windowID]
	if !ok {
		return domain.AvailabilityWindow{}, store.ErrNotFound
	}
	return w, nil
}

func (t *calendarTx) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if err := t.stamp(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if _, exists := t.windows[w.ID]; exists {
		return domain.AvailabilityWindow{}, store.ErrConflict
	}
	t.windows[w.ID] = w
	return w, nil
}

func (t *calendarTx) UpdateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	cur, ok := t.windows[w.ID]
	if !ok || cur.ProviderID != w.ProviderID {
		return domain.AvailabilityWindow{}, store.ErrNotFound
	}
	cur.DayOfWeek = w.DayOfWeek
	cur.StartTime = w.StartTime
	cur.EndTime = w.EndTime
	cur.UpdatedAt = t.parent.now().UTC()
	t.windows[w.ID] = cur
	return cur, nil
}

func (t *calendarTx) DeleteAvailability(ctx context.Context, providerID string, windowID uuid.UUID) error {
	cur, ok := t.windows[windowID]
	if !ok || cur.ProviderID != providerID {
		return store.ErrNotFound
	}
	delete(t.windows, windowID)
	return nil
}

func (t *calendarTx) GetBlock(ctx context.Context, blockID uuid.UUID) (domain.Block, error) {
	b, ok := t.blocks[blockID]
	if !ok {
		return domain.Block{}, store.ErrNotFound
	}
	return b, nil
}

func (t *calendarTx) CreateBlock(ctx context.Context, b domain.Block) (domain.Block, error) {
	if err := t.stamp(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Block{}, err
	}
	if _, exists := t.blocks[b.ID]; exists {
		return domain.Block{}, store.ErrConflict
	}
	t.blocks[b.ID] = b
	return b, nil
}

func (t *calendarTx) UpdateBlock(ctx context.Context, b domain.Block) (domain.Block, error) {
	cur, ok := t.blocks[b.ID]
	if !ok || cur.ProviderID != b.ProviderID {
		return domain.Block{}, store.ErrNotFound
	}
	cur.StartTime = b.StartTime
	cur.EndTime = b.EndTime
	cur.Reason = b.Reason
	cur.UpdatedAt = t.parent.now().UTC()
	t.blocks[b.ID] = cur
	return cur, nil
}

func (t *calendarTx) DeleteBlock(ctx context.Context, providerID string, blockID uuid.UUID) error {
	cur, ok := t.blocks[blockID]
	if !ok || cur.ProviderID != providerID {
		return store.ErrNotFound
	}
	delete(t.blocks, blockID)
	return nil
}

// CreateAppointments mirrors the database constraints: a duplicate id is an
// idempotency conflict and two blocking appointments of the provider may not
// overlap.
func (t *calendarTx) CreateAppointments(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	out := make([]domain.Appointment, 0, len(appts))
	staged := make(map[uuid.UUID]domain.Appointment, len(appts))
	for _, a := range appts {
		if err := t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if _, exists := t.appointments[a.ID]; exists {
			return nil, store.ErrIdempotencyConflict
		}
		if _, exists := staged[a.ID]; exists {
			return nil, store.ErrIdempotencyConflict
		}
		if other, err := t.parent.GetAppointment(ctx, a.ID); err == nil && other.ProviderID != t.providerID {
			return nil, store.ErrIdempotencyConflict
		}
		if a.Status.Blocking() {
			if t.overlapsBlocking(a, staged) {
				return nil, store.ErrConflict
			}
		}
		staged[a.ID] = cloneAppointment(a)
		out = append(out, cloneAppointment(a))
	}
	for id, a := range staged {
		t.appointments[id] = a
	}
	return out, nil
}

func (t *calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	cur, ok := t.appointments[appt.ID]
	if !ok || cur.ProviderID != appt.ProviderID {
		return domain.Appointment{}, store.ErrNotFound
	}
	cur.StartTime = appt.StartTime
	cur.EndTime = appt.EndTime
	cur.Status = appt.Status
	cur.Notes = appt.Notes
	if cur.Status.Blocking() && t.overlapsBlocking(cur, nil) {
		return domain.Appointment{}, store.ErrConflict
	}
	cur.UpdatedAt = t.parent.now().UTC()
	t.appointments[cur.ID] = cur
	return cloneAppointment(cur), nil
}

func (t *calendarTx) DeleteAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) error {
	cur, ok := t.appointments[appointmentID]
	if !ok || cur.ProviderID != providerID {
		return store.ErrNotFound
	}
	delete(t.appointments, appointmentID)
	return nil
}

func (t *calendarTx) ListSeries(ctx context.Context, providerID string, seriesID uuid.UUID) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range t.appointments {
		if a.ProviderID == providerID && a.SeriesID == seriesID {
			out = append(out, cloneAppointment(a))
		}
	}
	sortAppointments(out)
	return out, nil
}

func (t *calendarTx) overlapsBlocking(a domain.Appointment, staged map[uuid.UUID]domain.Appointment) bool {
	for _, set := range []map[uuid.UUID]domain.Appointment{t.appointments, staged} {
		for id, other := range set {
			if id == a.ID || !other.Status.Blocking() {
				continue
			}
			if domain.Overlaps(a.StartTime, a.EndTime, other.StartTime, other.EndTime) {
				return true
			}
		}
	}
	return false
}

func (t *calendarTx) stamp(id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := t.parent.now().UTC()
	if *id == uuid.Nil {
		v, err := uuid.NewV7()
		if err != nil {
			return err
		}
		*id = v
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
	return nil
}

func (t *calendarTx) StageEvents(ctx context.Context, evs ...events.Event) error {
	t.staged = append(t.staged, evs...)
	return nil
}
