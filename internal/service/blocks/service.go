// Package blocks manages one-off periods in which a provider cannot be booked.
package blocks

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
)

const maxReasonLength = 500

type ProviderResolver interface {
	Resolve(ctx context.Context, in providers.ResolveInput) (string, error)
}

type Service struct {
	calendar store.Calendar
	resolver ProviderResolver
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for the future-start rule.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(calendar store.Calendar, resolver ProviderResolver, opts ...Option) *Service {
	s := &Service{calendar: calendar, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListForProvider(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error) {
	if providerID == "" {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "provider_id is required")
	}
	if !windowStart.Before(windowEnd) {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "window_end must be after window_start")
	}
	return s.calendar.ListBlocks(ctx, providerID, windowStart.UTC(), windowEnd.UTC())
}

type CreateBlockInput struct {
	providers.ResolveInput
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

func (s *Service) Create(ctx context.Context, in CreateBlockInput) (domain.Block, error) {
	start, end := in.StartTime.UTC(), in.EndTime.UTC()
	reason, err := validate(start, end, in.Reason)
	if err != nil {
		return domain.Block{}, err
	}
	if err := s.ensureFuture(start); err != nil {
		return domain.Block{}, err
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.Block{}, err
	}

	b := domain.Block{ProviderID: providerID, StartTime: start, EndTime: end, Reason: reason}
	var out domain.Block
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		if err := ensureNoOverlap(ctx, tx, b); err != nil {
			return err
		}
		created, err := tx.CreateBlock(ctx, b)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	return out, err
}

type UpdateBlockInput struct {
	providers.ResolveInput
	BlockID   uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

// Update re-applies the future-start rule only when the start moves, so a
// block that has already begun can still have its end or reason edited.
func (s *Service) Update(ctx context.Context, in UpdateBlockInput) (domain.Block, error) {
	if in.BlockID == uuid.Nil {
		return domain.Block{}, domain.Invalidf(domain.ErrInvalidRequest, "block_id is required")
	}
	start, end := in.StartTime.UTC(), in.EndTime.UTC()
	reason, err := validate(start, end, in.Reason)
	if err != nil {
		return domain.Block{}, err
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return domain.Block{}, err
	}

	var out domain.Block
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		cur, err := tx.GetBlock(ctx, in.BlockID)
		if err != nil {
			return err
		}
		if cur.ProviderID != providerID {
			return store.ErrNotFound
		}
		if !cur.StartTime.Equal(start) {
			if err := s.ensureFuture(start); err != nil {
				return err
			}
		}
		cur.StartTime, cur.EndTime, cur.Reason = start, end, reason
		if err := ensureNoOverlap(ctx, tx, cur); err != nil {
			return err
		}
		updated, err := tx.UpdateBlock(ctx, cur)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

type DeleteBlockInput struct {
	providers.ResolveInput
	BlockID uuid.UUID
}

// Delete removes a block. Appointments are not revalidated.
func (s *Service) Delete(ctx context.Context, in DeleteBlockInput) error {
	if in.BlockID == uuid.Nil {
		return domain.Invalidf(domain.ErrInvalidRequest, "block_id is required")
	}
	providerID, err := s.resolver.Resolve(ctx, in.ResolveInput)
	if err != nil {
		return err
	}
	return s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		return tx.DeleteBlock(ctx, providerID, in.BlockID)
	})
}

func (s *Service) ensureFuture(start time.Time) error {
	now := s.now().UTC().Truncate(time.Minute)
	if !start.Truncate(time.Minute).After(now) {
		return domain.Invalidf(domain.ErrPastBlockStart, "start %s is not after %s", start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

func ensureNoOverlap(ctx context.Context, tx store.CalendarTx, b domain.Block) error {
	existing, err := tx.ListBlocks(ctx, b.ProviderID, b.StartTime, b.EndTime)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID == b.ID {
			continue
		}
		if e.Overlaps(b.StartTime, b.EndTime) {
			return domain.Invalidf(domain.ErrBlockOverlap, "block %s (%s - %s)",
				e.ID, e.StartTime.Format(time.RFC3339), e.EndTime.Format(time.RFC3339))
		}
	}
	return nil
}

func validate(start, end time.Time, reason string) (string, error) {
	if start.IsZero() || end.IsZero() {
		return "", domain.Invalidf(domain.ErrInvalidRequest, "start_time and end_time are required")
	}
	if !start.Before(end) {
		return "", domain.Invalid(domain.ErrInvalidInterval)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return "", domain.Invalidf(domain.ErrInvalidRequest, "reason exceeds %d characters", maxReasonLength)
	}
	return reason, nil
}
