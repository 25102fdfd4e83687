package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
)

// CalendarReader holds the reads that need no provider lock.
type CalendarReader interface {
	ListAvailability(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error)
	ListBlocks(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error)
	// ListAppointments returns appointments of every status overlapping the window.
	ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
}

// Calendar is the persistence boundary of the scheduling core. Writes only
// happen through InProviderTransaction, which serializes all writers of a
// provider's calendar and commits or rolls back as a unit.
type Calendar interface {
	CalendarReader
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx CalendarTx) error) error
}

type CalendarTx interface {
	CalendarReader

	GetAvailability(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error)
	CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	UpdateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, providerID string, windowID uuid.UUID) error

	GetBlock(ctx context.Context, blockID uuid.UUID) (domain.Block, error)
	CreateBlock(ctx context.Context, b domain.Block) (domain.Block, error)
	UpdateBlock(ctx context.Context, b domain.Block) (domain.Block, error)
	DeleteBlock(ctx context.Context, providerID string, blockID uuid.UUID) error

	// CreateAppointments inserts every appointment or none of them.
	CreateAppointments(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) error
	ListSeries(ctx context.Context, providerID string, seriesID uuid.UUID) ([]domain.Appointment, error)

	// StageEvents writes events alongside the calendar change. They become
	// visible to the relay only if the transaction commits.
	StageEvents(ctx context.Context, evs ...events.Event) error
}
