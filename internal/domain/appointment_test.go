package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAppointmentStatus_Transitions(t *testing.T) {
	all := []AppointmentStatus{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}
	allowed := map[[2]AppointmentStatus]bool{
		{StatusScheduled, StatusInProgress}: true,
		{StatusScheduled, StatusCancelled}:  true,
		{StatusScheduled, StatusNoShow}:     true,
		{StatusInProgress, StatusCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]AppointmentStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAppointmentStatus_TerminalAndBlocking(t *testing.T) {
	for _, s := range []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow} {
		if !s.Terminal() {
			t.Fatalf("%s.Terminal() = false, want true", s)
		}
	}
	if StatusScheduled.Terminal() || StatusInProgress.Terminal() {
		t.Fatalf("non-terminal status reported terminal")
	}
	if StatusCancelled.Blocking() {
		t.Fatalf("cancelled appointments must not block")
	}
	if !StatusNoShow.Blocking() || !StatusScheduled.Blocking() {
		t.Fatalf("expected scheduled and no-show to block")
	}
	if AppointmentStatus("booked").Valid() {
		t.Fatalf("unknown status reported valid")
	}
}

func TestConflictError_MessageAndUnwrap(t *testing.T) {
	conflicting := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	err := error(&ConflictError{
		Err:           ErrOverlap,
		Occurrence:    3,
		Start:         time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC),
		End:           time.Date(2026, 1, 19, 9, 30, 0, 0, time.UTC),
		ConflictingID: conflicting,
	})

	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("errors.Is(err, ErrOverlap) = false")
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) || cErr.Occurrence != 3 {
		t.Fatalf("errors.As failed or wrong occurrence: %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "occurrence 3") || !strings.Contains(msg, conflicting.String()) {
		t.Fatalf("message %q missing occurrence or conflicting id", msg)
	}
}

func TestValidationError_Detail(t *testing.T) {
	err := Invalidf(ErrInvalidRequest, "patient_id is required")
	if err.Error() != "invalid request: patient_id is required" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("errors.Is(err, ErrInvalidRequest) = false")
	}
	if Invalid(ErrDuplicateWindow).Error() != ErrDuplicateWindow.Error() {
		t.Fatalf("Invalid without detail should keep sentinel message")
	}
}
