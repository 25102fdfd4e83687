package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AvailabilityWindow is a provider's standing weekly availability on one day.
type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID         uuid.UUID    `bun:"id,pk,type:uuid"`
	ProviderID string       `bun:"provider_id,notnull"`
	DayOfWeek  time.Weekday `bun:"day_of_week,notnull"`
	StartTime  ClockTime    `bun:"start_minute,notnull"`
	EndTime    ClockTime    `bun:"end_minute,notnull"`
	CreatedAt  time.Time    `bun:"created_at,notnull"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull"`
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &w.ID, &w.CreatedAt, &w.UpdatedAt)
}

// Covers reports whether w fully contains the clock range of other.
func (w AvailabilityWindow) Covers(other AvailabilityWindow) bool {
	return ClockContains(w.StartTime, w.EndTime, other.StartTime, other.EndTime)
}

// Bounds returns the absolute interval the window spans on the calendar day
// of date in loc.
func (w AvailabilityWindow) Bounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	return w.StartTime.On(date, loc), w.EndTime.On(date, loc)
}

// Admits reports whether [start,end) fits inside this single window on the
// day start falls on.
func (w AvailabilityWindow) Admits(start, end time.Time, loc *time.Location) bool {
	if start.In(loc).Weekday() != w.DayOfWeek {
		return false
	}
	ws, we := w.Bounds(start, loc)
	return Contains(ws, we, start, end)
}
