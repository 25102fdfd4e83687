// Package availability manages providers' standing weekly availability.
package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
)

type ProviderResolver interface {
	Resolve(ctx context.Context, in providers.ResolveInput) (string, error)
}

type Service struct {
	calendar store.Calendar
	resolver ProviderResolver
}

func NewService(calendar store.Calendar, resolver ProviderResolver) *Service {
	return &Service{calendar: calendar, resolver: resolver}
}

func (s *Service) ListForProviderAndDay(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	if providerID == "" {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "provider_id is required")
	}
	if !validDay(day) {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "day_of_week must be 0-6")
	}
	return s.calendar.ListAvailability(ctx, providerID, day)
}

type CreateWindowInput struct {
	providers.ResolveInput
	DayOfWeek time.Weekday
	StartTime domain.ClockTime
	EndTime   domain.ClockTime
}

func (s *Service) Create(ctx context.Context, in CreateWindowInput) (domain.AvailabilityWindow, error) {
	if err := validateRange(in.DayOfWeek, in.StartTime, in.EndTime); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	w := domain.AvailabilityWindow{
		ProviderID: providerID,
		DayOfWeek:  in.DayOfWeek,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
	}
	var out domain.AvailabilityWindow
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		if err := ensureNotCovered(ctx, tx, w); err != nil {
			return err
		}
		created, err := tx.CreateAvailability(ctx, w)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	return out, err
}

type UpdateWindowInput struct {
	providers.ResolveInput
	WindowID  uuid.UUID
	DayOfWeek time.Weekday
	StartTime domain.ClockTime
	EndTime   domain.ClockTime
}

func (s *Service) Update(ctx context.Context, in UpdateWindowInput) (domain.AvailabilityWindow, error) {
	if in.WindowID == uuid.Nil {
		return domain.AvailabilityWindow{}, domain.Invalidf(domain.ErrInvalidRequest, "window_id is required")
	}
	if err := validateRange(in.DayOfWeek, in.StartTime, in.EndTime); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	var out domain.AvailabilityWindow
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		cur, err := tx.GetAvailability(ctx, in.WindowID)
		if err != nil {
			return err
		}
		if cur.ProviderID != providerID {
			return store.ErrNotFound
		}
		cur.DayOfWeek = in.DayOfWeek
		cur.StartTime = in.StartTime
		cur.EndTime = in.EndTime
		if err := ensureNotCovered(ctx, tx, cur); err != nil {
			return err
		}
		updated, err := tx.UpdateAvailability(ctx, cur)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

type DeleteWindowInput struct {
	providers.ResolveInput
	WindowID uuid.UUID
}

func (s *Service) Delete(ctx context.Context, in DeleteWindowInput) error {
	if in.WindowID == uuid.Nil {
		return domain.Invalidf(domain.ErrInvalidRequest, "window_id is required")
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return err
	}
	return s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		return tx.DeleteAvailability(ctx, providerID, in.WindowID)
	})
}

// ensureNotCovered rejects w when another window of the same provider and
// day already contains its whole range. Partial overlaps are allowed.
func ensureNotCovered(ctx context.Context, tx store.CalendarTx, w domain.AvailabilityWindow) error {
	existing, err := tx.ListAvailability(ctx, w.ProviderID, w.DayOfWeek)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID == w.ID {
			continue
		}
		if e.Covers(w) {
			return domain.Invalidf(domain.ErrDuplicateWindow, "%s %s-%s", e.DayOfWeek, e.StartTime, e.EndTime)
		}
	}
	return nil
}

func validateRange(day time.Weekday, start, end domain.ClockTime) error {
	if !validDay(day) {
		return domain.Invalidf(domain.ErrInvalidRequest, "day_of_week must be 0-6")
	}
	if !start.Valid() || !end.Valid() {
		return domain.Invalidf(domain.ErrInvalidRequest, "times must be within 00:00-24:00")
	}
	if start >= end {
		return domain.Invalid(domain.ErrInvalidInterval)
	}
	return nil
}

func validDay(day time.Weekday) bool {
	return day >= time.Sunday && day <= time.Saturday
}
