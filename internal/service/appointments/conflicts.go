package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

// checkOccurrences runs the availability, block and overlap checks for each
// candidate in order and reports the first failure. exclude names an
// existing appointment that must not count as a conflict (the one being
// rescheduled). Candidates are 1-based in the reported error.
func (s *Service) checkOccurrences(ctx context.Context, tx store.CalendarTx, providerID string, candidates []domain.Appointment, exclude uuid.UUID) error {
	if len(candidates) == 0 {
		return nil
	}
	spanStart, spanEnd := candidates[0].StartTime, candidates[0].EndTime
	for _, c := range candidates[1:] {
		if c.StartTime.Before(spanStart) {
			spanStart = c.StartTime
		}
		if c.EndTime.After(spanEnd) {
			spanEnd = c.EndTime
		}
	}

	blocks, err := tx.ListBlocks(ctx, providerID, spanStart, spanEnd)
	if err != nil {
		return err
	}
	existing, err := tx.ListAppointments(ctx, providerID, spanStart, spanEnd)
	if err != nil {
		return err
	}
	windowsByDay := make(map[time.Weekday][]domain.AvailabilityWindow)

	for i, c := range candidates {
		index := i + 1
		conflict := func(err error, conflictingID uuid.UUID, reason string) error {
			return &domain.ConflictError{
				Err:           err,
				Occurrence:    index,
				Start:         c.StartTime,
				End:           c.EndTime,
				ConflictingID: conflictingID,
				Reason:        reason,
			}
		}

		day := c.StartTime.In(s.loc).Weekday()
		windows, ok := windowsByDay[day]
		if !ok {
			windows, err = tx.ListAvailability(ctx, providerID, day)
			if err != nil {
				return err
			}
			windowsByDay[day] = windows
		}
		if !admitted(windows, c, s.loc) {
			return conflict(domain.ErrOutsideAvailability, uuid.Nil, "")
		}

		for _, b := range blocks {
			if b.Overlaps(c.StartTime, c.EndTime) {
				return conflict(domain.ErrBlockedTime, b.ID, b.Reason)
			}
		}

		for _, a := range existing {
			if a.ID == exclude || !a.Status.Blocking() {
				continue
			}
			if domain.Overlaps(a.StartTime, a.EndTime, c.StartTime, c.EndTime) {
				return conflict(domain.ErrOverlap, a.ID, "")
			}
		}

		for j, prev := range candidates[:i] {
			if domain.Overlaps(prev.StartTime, prev.EndTime, c.StartTime, c.EndTime) {
				return conflict(domain.ErrOverlap, uuid.Nil, fmt.Sprintf("overlaps occurrence %d of the same series", j+1))
			}
		}
	}
	return nil
}

// admitted reports whether a single window contains the whole occurrence.
// Adjacent windows are not merged.
func admitted(windows []domain.AvailabilityWindow, a domain.Appointment, loc *time.Location) bool {
	for _, w := range windows {
		if w.Admits(a.StartTime, a.EndTime, loc) {
			return true
		}
	}
	return false
}
