package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Blocking reports whether an appointment in this status occupies the
// provider's time for conflict detection.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid"`
	ProviderID     string            `bun:"provider_id,notnull"`
	BookedByUserID string            `bun:"booked_by_user_id,notnull"`
	PatientID      string            `bun:"patient_id,notnull"`
	LocationID     string            `bun:"location_id,notnull"`
	StartTime      time.Time         `bun:"start_time,notnull"`
	EndTime        time.Time         `bun:"end_time,notnull"`
	Status         AppointmentStatus `bun:"status,notnull"`
	Notes          string            `bun:"notes"`
	Recurrence     *RecurrenceRule   `bun:"recurrence_rule,type:jsonb"`
	SeriesID       uuid.UUID         `bun:"series_id,type:uuid,nullzero"`
	// RequestHash fingerprints the idempotent booking request that wrote the row.
	RequestHash    uuid.UUID         `bun:"request_hash,type:uuid,nullzero"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (a Appointment) InSeries() bool {
	return a.SeriesID != uuid.Nil
}

// stampModel assigns a v7 id and timestamps on insert and refreshes
// updated_at on update.
func stampModel(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
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
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
