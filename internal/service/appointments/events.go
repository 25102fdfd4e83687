package appointments

import (
	"context"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
)

// stage builds one event per changed appointment and writes them with the
// calendar transaction, so a committed change always has its events.
func (s *Service) stage(ctx context.Context, tx store.CalendarTx, eventType string, prev domain.AppointmentStatus, appts ...domain.Appointment) ([]events.Event, error) {
	if len(appts) == 0 {
		return nil, nil
	}
	evs := make([]events.Event, 0, len(appts))
	for _, a := range appts {
		payload := events.AppointmentPayload{
			AppointmentID:  a.ID.String(),
			ProviderID:     a.ProviderID,
			PatientID:      a.PatientID,
			LocationID:     a.LocationID,
			BookedByUserID: a.BookedByUserID,
			StartTime:      a.StartTime,
			EndTime:        a.EndTime,
			Status:         string(a.Status),
			PreviousStatus: string(prev),
		}
		if a.InSeries() {
			payload.SeriesID = a.SeriesID.String()
		}
		ev, err := events.New(eventType, a.ID.String(), a.ProviderID, payload)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	if err := tx.StageEvents(ctx, evs...); err != nil {
		return nil, err
	}
	return evs, nil
}

// notify hands committed events to the in-process publisher. Failures are
// logged and never undo or fail the scheduling operation.
func (s *Service) notify(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.WarnContext(ctx, "publish events failed", "event_type", evs[0].Type, "count", len(evs), "err", err)
	}
}
