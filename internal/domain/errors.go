package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidInterval   = errors.New("start must be before end")
	ErrDuplicateWindow   = errors.New("an existing availability window already covers this range")
	ErrPastBlockStart    = errors.New("block must start in the future")
	ErrBlockOverlap      = errors.New("block overlaps an existing block")
	ErrSeriesTooLong     = errors.New("recurrence produces too many occurrences")
	ErrVirtualOccurrence = errors.New("occurrence is not materialized; edit or cancel the series instead")

	ErrInsufficientPermission       = errors.New("not allowed to manage this calendar")
	ErrUnauthorizedProviderMismatch = errors.New("provider does not match the acting user")

	ErrNoProviderForLocation = errors.New("no provider is assigned to this location")

	ErrOutsideAvailability = errors.New("outside the provider's availability")
	ErrBlockedTime         = errors.New("conflicts with a blocked period")
	ErrOverlap             = errors.New("overlaps an existing appointment")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError is returned for malformed input or rule violations on
// availability windows and blocks.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Err }

func Invalid(err error) error {
	return &ValidationError{Err: err}
}

func Invalidf(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

type AuthorizationError struct {
	Err        error
	ActorID    string
	ProviderID string
}

func (e *AuthorizationError) Error() string { return e.Err.Error() }

func (e *AuthorizationError) Unwrap() error { return e.Err }

type ResolutionError struct {
	Err        error
	LocationID string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("location %s: %s", e.LocationID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConflictError describes the first occurrence of a booking that cannot be
// placed. Occurrence is 1-based; zero means the index is unknown.
type ConflictError struct {
	Err           error
	Occurrence    int
	Start         time.Time
	End           time.Time
	ConflictingID uuid.UUID
	Reason        string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s - %s: %s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Err)
	if e.Occurrence > 0 {
		msg = fmt.Sprintf("occurrence %d (%s - %s): %s",
			e.Occurrence, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Err)
	}
	if e.ConflictingID != uuid.Nil {
		msg += " " + e.ConflictingID.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.Err }

type StateError struct {
	Err  error
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Err, e.From, e.To)
}

func (e *StateError) Unwrap() error { return e.Err }
