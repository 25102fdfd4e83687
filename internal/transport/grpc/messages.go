package grpc

import (
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
)

// CalendarScope names the calendar a request acts on. ProviderID is an
// optional override checked against the resolved provider.
type CalendarScope struct {
	LocationID string `json:"location_id"`
	ProviderID string `json:"provider_id,omitempty"`
}

type Empty struct{}

type Appointment struct {
	ID             string                 `json:"id"`
	ProviderID     string                 `json:"provider_id"`
	BookedByUserID string                 `json:"booked_by_user_id"`
	PatientID      string                 `json:"patient_id"`
	LocationID     string                 `json:"location_id"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        time.Time              `json:"end_time"`
	Status         string                 `json:"status"`
	Notes          string                 `json:"notes,omitempty"`
	Recurrence     *domain.RecurrenceRule `json:"recurrence,omitempty"`
	SeriesID       string                 `json:"series_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type BookAppointmentRequest struct {
	CalendarScope
	PatientID  string                 `json:"patient_id"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Recurrence *domain.RecurrenceRule `json:"recurrence,omitempty"`
	Notes      string                 `json:"notes,omitempty"`
}

type BookAppointmentResponse struct {
	Appointments []Appointment `json:"appointments"`
	SeriesID     string        `json:"series_id,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"`
	Replayed     bool          `json:"replayed,omitempty"`
}

type RescheduleAppointmentRequest struct {
	CalendarScope
	AppointmentID string    `json:"appointment_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Notes         *string   `json:"notes,omitempty"`
}

type UpdateAppointmentStatusRequest struct {
	CalendarScope
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type AppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
}

type DeleteAppointmentRequest struct {
	CalendarScope
	AppointmentID string `json:"appointment_id"`
}

type CancelSeriesRequest struct {
	CalendarScope
	SeriesID string `json:"series_id"`
}

type CancelSeriesResponse struct {
	Cancelled int `json:"cancelled"`
}

type ListAppointmentsRequest struct {
	ProviderID       string    `json:"provider_id"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	IncludeCancelled bool      `json:"include_cancelled,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}

type PreviewSeriesRequest struct {
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Recurrence *domain.RecurrenceRule `json:"recurrence,omitempty"`
	SeriesID   string                 `json:"series_id,omitempty"`
}

type Occurrence struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type PreviewSeriesResponse struct {
	Occurrences []Occurrence `json:"occurrences"`
	Degraded    bool         `json:"degraded,omitempty"`
}

// AvailabilityWindow carries clock times as "HH:MM" in the clinic time zone
// and the weekday as 0 (Sunday) through 6.
type AvailabilityWindow struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type ListAvailabilityRequest struct {
	ProviderID string `json:"provider_id"`
	DayOfWeek  int    `json:"day_of_week"`
}

type ListAvailabilityResponse struct {
	Windows []AvailabilityWindow `json:"windows"`
}

type CreateAvailabilityRequest struct {
	CalendarScope
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type UpdateAvailabilityRequest struct {
	CalendarScope
	WindowID  string `json:"window_id"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type AvailabilityResponse struct {
	Window AvailabilityWindow `json:"window"`
}

type DeleteAvailabilityRequest struct {
	CalendarScope
	WindowID string `json:"window_id"`
}

type Block struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Reason     string    `json:"reason,omitempty"`
}

type ListBlocksRequest struct {
	ProviderID  string    `json:"provider_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

type ListBlocksResponse struct {
	Blocks []Block `json:"blocks"`
}

type CreateBlockRequest struct {
	CalendarScope
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
}

type UpdateBlockRequest struct {
	CalendarScope
	BlockID   string    `json:"block_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
}

type BlockResponse struct {
	Block Block `json:"block"`
}

type DeleteBlockRequest struct {
	CalendarScope
	BlockID string `json:"block_id"`
}

func toAppointment(a domain.Appointment) Appointment {
	out := Appointment{
		ID:             a.ID.String(),
		ProviderID:     a.ProviderID,
		BookedByUserID: a.BookedByUserID,
		PatientID:      a.PatientID,
		LocationID:     a.LocationID,
		StartTime:      a.StartTime.UTC(),
		EndTime:        a.EndTime.UTC(),
		Status:         string(a.Status),
		Notes:          a.Notes,
		Recurrence:     a.Recurrence,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
	if a.InSeries() {
		out.SeriesID = a.SeriesID.String()
	}
	return out
}

func toAppointments(appts []domain.Appointment) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}
	return out
}

func toOccurrences(occs []appointments.PreviewOccurrence) []Occurrence {
	out := make([]Occurrence, 0, len(occs))
	for _, o := range occs {
		out = append(out, Occurrence{ID: o.ID, Index: o.Index, StartTime: o.Start, EndTime: o.End})
	}
	return out
}

func toAvailabilityWindow(w domain.AvailabilityWindow) AvailabilityWindow {
	return AvailabilityWindow{
		ID:         w.ID.String(),
		ProviderID: w.ProviderID,
		DayOfWeek:  int(w.DayOfWeek),
		StartTime:  w.StartTime.String(),
		EndTime:    w.EndTime.String(),
	}
}

func toBlock(b domain.Block) Block {
	return Block{
		ID:         b.ID.String(),
		ProviderID: b.ProviderID,
		StartTime:  b.StartTime.UTC(),
		EndTime:    b.EndTime.UTC(),
		Reason:     b.Reason,
	}
}

func seriesIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
