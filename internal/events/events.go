package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentBooked        = "appointment.booked.v1"
	TypeAppointmentRescheduled   = "appointment.rescheduled.v1"
	TypeAppointmentStatusChanged = "appointment.status_changed.v1"
	TypeAppointmentCancelled     = "appointment.cancelled.v1"
	TypeAppointmentDeleted       = "appointment.deleted.v1"
)

// Event is the envelope handed to the notification pipeline. The message
// topic is derived from Type.
type Event struct {
	ID          uuid.UUID
	Type        string
	AggregateID string
	ProviderID  string
	OccurredAt  time.Time
	Payload     json.RawMessage
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	SeriesID       string    `json:"series_id,omitempty"`
	ProviderID     string    `json:"provider_id"`
	PatientID      string    `json:"patient_id"`
	LocationID     string    `json:"location_id"`
	BookedByUserID string    `json:"booked_by_user_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
}

func New(eventType, aggregateID, providerID string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          id,
		Type:        eventType,
		AggregateID: aggregateID,
		ProviderID:  providerID,
		OccurredAt:  time.Now().UTC(),
		Payload:     b,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// Nop discards events. Used when no outbox is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
