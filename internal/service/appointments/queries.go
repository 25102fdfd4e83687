package appointments

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
)

type ListInput struct {
	ProviderID       string
	WindowStart      time.Time
	WindowEnd        time.Time
	IncludeCancelled bool
}

// List reads a provider's appointments overlapping the window without
// taking the calendar lock.
func (s *Service) List(ctx context.Context, in ListInput) ([]domain.Appointment, error) {
	if in.ProviderID == "" {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "provider_id is required")
	}
	start, end := in.WindowStart.UTC(), in.WindowEnd.UTC()
	if !start.Before(end) {
		return nil, domain.Invalidf(domain.ErrInvalidRequest, "window_end must be after window_start")
	}

	rows, err := s.calendar.ListAppointments(ctx, in.ProviderID, start, end)
	if err != nil {
		return nil, err
	}
	if in.IncludeCancelled {
		return rows, nil
	}
	out := rows[:0]
	for _, a := range rows {
		if a.Status != domain.StatusCancelled {
			out = append(out, a)
		}
	}
	return out, nil
}

type PreviewInput struct {
	StartTime  time.Time
	EndTime    time.Time
	Recurrence *domain.RecurrenceRule
	// SeriesID, when set, is used to derive addressable occurrence ids.
	SeriesID uuid.UUID
}

type PreviewOccurrence struct {
	ID    string
	Index int
	Start time.Time
	End   time.Time
}

type PreviewResult struct {
	Occurrences []PreviewOccurrence
	Degraded    bool
}

// PreviewSeries expands a rule without touching storage. Occurrences are
// virtual: they carry ids but no appointment rows exist for them.
func (s *Service) PreviewSeries(ctx context.Context, in PreviewInput) (PreviewResult, error) {
	if err := validateSpan(in.StartTime, in.EndTime); err != nil {
		return PreviewResult{}, err
	}
	if err := validateRule(in.Recurrence, in.StartTime); err != nil {
		return PreviewResult{}, err
	}

	exp := domain.ExpandRecurrence(in.Recurrence, in.StartTime.UTC(), in.EndTime.UTC(), s.loc)
	if exp.Degraded {
		s.logger.WarnContext(ctx, "recurrence rule could not be evaluated; previewing first occurrence only", "err", exp.Err)
	}
	occs, truncated := exp.Collect(s.maxOccurrences)
	if truncated {
		return PreviewResult{}, domain.Invalidf(domain.ErrSeriesTooLong, "more than %d occurrences", s.maxOccurrences)
	}

	out := PreviewResult{Occurrences: make([]PreviewOccurrence, 0, len(occs)), Degraded: exp.Degraded}
	for _, o := range occs {
		id := "preview@" + strconv.FormatInt(o.Start.UnixNano(), 10)
		if in.SeriesID != uuid.Nil {
			id = domain.VirtualOccurrenceID(in.SeriesID, o.Start)
		}
		out.Occurrences = append(out.Occurrences, PreviewOccurrence{ID: id, Index: o.Index, Start: o.Start, End: o.End})
	}
	return out, nil
}
