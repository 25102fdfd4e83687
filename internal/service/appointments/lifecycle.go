package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
)

type RescheduleInput struct {
	providers.ResolveInput
	// AppointmentRef is an appointment id or a virtual occurrence id.
	AppointmentRef string
	StartTime      time.Time
	EndTime        time.Time
	Notes          *string
}

// Reschedule moves one materialized, still scheduled appointment. The new
// slot goes through the same checks as a booking, ignoring the appointment
// itself.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (out domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Reschedule")
	defer func() { endSpan(span, err) }()

	id, err := materializedID(in.AppointmentRef)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := validateSpan(in.StartTime, in.EndTime); err != nil {
		return domain.Appointment{}, err
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLength {
		return domain.Appointment{}, domain.Invalidf(domain.ErrInvalidRequest, "notes exceed %d characters", maxNotesLength)
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.Appointment{}, err
	}
	span.SetAttributes(attribute.String("provider.id", providerID), attribute.String("appointment.id", id.String()))

	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	var staged []events.Event
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		cur, err := ownedAppointment(ctx, tx, providerID, id)
		if err != nil {
			return err
		}
		if cur.Status != domain.StatusScheduled {
			return &domain.StateError{Err: domain.ErrInvalidStatusTransition, From: cur.Status, To: domain.StatusScheduled}
		}

		cur.StartTime, cur.EndTime = in.StartTime.UTC(), in.EndTime.UTC()
		if in.Notes != nil {
			cur.Notes = *in.Notes
		}
		if err := s.checkOccurrences(ctx, tx, providerID, []domain.Appointment{cur}, cur.ID); err != nil {
			return err
		}
		updated, err := tx.UpdateAppointment(ctx, cur)
		if errors.Is(err, store.ErrConflict) {
			return &domain.ConflictError{Err: domain.ErrOverlap, Occurrence: 1, Start: cur.StartTime, End: cur.EndTime}
		}
		if err != nil {
			return err
		}
		out = updated
		staged, err = s.stage(ctx, tx, events.TypeAppointmentRescheduled, "", out)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.notify(ctx, staged)
	return out, nil
}

type TransitionInput struct {
	providers.ResolveInput
	AppointmentRef string
	Status         domain.AppointmentStatus
}

func (s *Service) TransitionStatus(ctx context.Context, in TransitionInput) (out domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.TransitionStatus")
	defer func() { endSpan(span, err) }()

	id, err := materializedID(in.AppointmentRef)
	if err != nil {
		return domain.Appointment{}, err
	}
	next := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if !next.Valid() {
		return domain.Appointment{}, domain.Invalidf(domain.ErrInvalidRequest, "unknown status %q", in.Status)
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.Appointment{}, err
	}

	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	var staged []events.Event
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		cur, err := ownedAppointment(ctx, tx, providerID, id)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransitionTo(next) {
			return &domain.StateError{Err: domain.ErrInvalidStatusTransition, From: cur.Status, To: next}
		}
		prev := cur.Status
		cur.Status = next
		updated, err := tx.UpdateAppointment(ctx, cur)
		if err != nil {
			return err
		}
		out = updated

		eventType := events.TypeAppointmentStatusChanged
		if next == domain.StatusCancelled {
			eventType = events.TypeAppointmentCancelled
		}
		staged, err = s.stage(ctx, tx, eventType, prev, out)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.notify(ctx, staged)
	return out, nil
}

type DeleteInput struct {
	providers.ResolveInput
	AppointmentRef string
}

// Delete removes a materialized appointment row. Virtual occurrences of a
// series are rejected; the series itself has to be cancelled.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Delete")
	defer func() { endSpan(span, err) }()

	id, err := materializedID(in.AppointmentRef)
	if err != nil {
		return err
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var staged []events.Event
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		cur, err := ownedAppointment(ctx, tx, providerID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, providerID, id); err != nil {
			return err
		}
		staged, err = s.stage(ctx, tx, events.TypeAppointmentDeleted, "", cur)
		return err
	})
	if err != nil {
		return err
	}
	s.notify(ctx, staged)
	return nil
}

type CancelSeriesInput struct {
	providers.ResolveInput
	SeriesID uuid.UUID
}

// CancelSeries cancels every scheduled occurrence of a series that has not
// started yet, atomically. It returns how many were cancelled.
func (s *Service) CancelSeries(ctx context.Context, in CancelSeriesInput) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.CancelSeries")
	defer func() { endSpan(span, err) }()

	if in.SeriesID == uuid.Nil {
		return 0, domain.Invalidf(domain.ErrInvalidRequest, "series_id is required")
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var (
		cancelled []domain.Appointment
		staged    []events.Event
	)
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		series, err := tx.ListSeries(ctx, providerID, in.SeriesID)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			return store.ErrNotFound
		}
		for _, a := range series {
			if a.Status != domain.StatusScheduled || !a.StartTime.After(now) {
				continue
			}
			a.Status = domain.StatusCancelled
			updated, err := tx.UpdateAppointment(ctx, a)
			if err != nil {
				return err
			}
			cancelled = append(cancelled, updated)
		}
		staged, err = s.stage(ctx, tx, events.TypeAppointmentCancelled, domain.StatusScheduled, cancelled...)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, staged)
	return len(cancelled), nil
}

func materializedID(ref string) (uuid.UUID, error) {
	if strings.TrimSpace(ref) == "" {
		return uuid.Nil, domain.Invalidf(domain.ErrInvalidRequest, "appointment_id is required")
	}
	parsed, err := domain.ParseOccurrenceRef(ref)
	if err != nil {
		return uuid.Nil, err
	}
	if parsed.Virtual() {
		return uuid.Nil, domain.Invalidf(domain.ErrVirtualOccurrence, "series %s", parsed.SeriesID)
	}
	return parsed.AppointmentID, nil
}

// ownedAppointment loads an appointment and hides rows that belong to a
// different provider.
func ownedAppointment(ctx context.Context, tx store.CalendarTx, providerID string, id uuid.UUID) (domain.Appointment, error) {
	cur, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if cur.ProviderID != providerID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return cur, nil
}
