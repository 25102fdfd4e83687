// Package appointments is the scheduling engine: it decides whether a
// booking is legal for a provider and writes it atomically.
package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/telemetry"
)

const (
	DefaultMaxOccurrences = 366
	maxDuration           = 24 * time.Hour
	maxIdempotencyKey     = 256
	maxNotesLength        = 2000
)

type ProviderResolver interface {
	Resolve(ctx context.Context, in providers.ResolveInput) (string, error)
}

type Service struct {
	calendar       store.Calendar
	resolver       ProviderResolver
	publisher      events.Publisher
	logger         *slog.Logger
	tracer         trace.Tracer
	loc            *time.Location
	now            func() time.Time
	maxOccurrences int
}

type Option func(*Service)

// WithLocation sets the clinic time zone in which availability windows and
// recurrence rules are evaluated. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMaxOccurrences(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOccurrences = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(calendar store.Calendar, resolver ProviderResolver, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		calendar:       calendar,
		resolver:       resolver,
		publisher:      publisher,
		logger:         logger.With("component", "scheduling_engine"),
		tracer:         telemetry.Tracer(),
		loc:            time.UTC,
		now:            time.Now,
		maxOccurrences: DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookingRequest is a single or recurring booking as received from the API
// layer. StartTime and EndTime describe the first occurrence.
type BookingRequest struct {
	Actor              domain.Actor
	LocationID         string
	ProviderIDOverride string
	PatientID          string
	StartTime          time.Time
	EndTime            time.Time
	Recurrence         *domain.RecurrenceRule
	Notes              string
	IdempotencyKey     string
}

// Validate checks the request shape before any lookup happens.
func (r BookingRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Actor.UserID) == "":
		return domain.Invalidf(domain.ErrInvalidRequest, "acting_user_id is required")
	case r.Actor.Role == "":
		return domain.Invalidf(domain.ErrInvalidRequest, "role is required")
	case strings.TrimSpace(r.LocationID) == "":
		return domain.Invalidf(domain.ErrInvalidRequest, "location_id is required")
	case strings.TrimSpace(r.PatientID) == "":
		return domain.Invalidf(domain.ErrInvalidRequest, "patient_id is required")
	case len(strings.TrimSpace(r.IdempotencyKey)) > maxIdempotencyKey:
		return domain.Invalidf(domain.ErrInvalidRequest, "idempotency_key too long")
	case len(r.Notes) > maxNotesLength:
		return domain.Invalidf(domain.ErrInvalidRequest, "notes exceed %d characters", maxNotesLength)
	}
	if err := validateSpan(r.StartTime, r.EndTime); err != nil {
		return err
	}
	return validateRule(r.Recurrence, r.StartTime)
}

func validateSpan(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.Invalidf(domain.ErrInvalidRequest, "start_time and end_time are required")
	}
	if !start.Before(end) {
		return domain.Invalid(domain.ErrInvalidInterval)
	}
	if end.Sub(start) > maxDuration {
		return domain.Invalidf(domain.ErrInvalidRequest, "duration exceeds %s", maxDuration)
	}
	return nil
}

// validateRule rejects field values that are wrong on their face. Rules
// that only fail in the evaluator degrade to a single occurrence instead.
func validateRule(rule *domain.RecurrenceRule, start time.Time) error {
	if rule == nil {
		return nil
	}
	switch rule.Frequency {
	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly:
	case domain.FrequencyCustom:
		if strings.TrimSpace(rule.Custom) == "" {
			return domain.Invalidf(domain.ErrInvalidRequest, "custom recurrence requires an rrule")
		}
	default:
		return domain.Invalidf(domain.ErrInvalidRequest, "unsupported recurrence frequency %q", rule.Frequency)
	}
	if rule.Interval < 0 {
		return domain.Invalidf(domain.ErrInvalidRequest, "interval must be positive")
	}
	if rule.Count != nil && *rule.Count < 1 {
		return domain.Invalidf(domain.ErrInvalidRequest, "count must be at least 1")
	}
	if rule.Until != nil && rule.Until.Before(start) {
		return domain.Invalidf(domain.ErrInvalidRequest, "until must not be before start_time")
	}
	return nil
}

type BookingResult struct {
	Appointments []domain.Appointment
	// SeriesID is set when the booking produced a recurring series.
	SeriesID uuid.UUID
	// Degraded reports that the recurrence rule could not be evaluated and
	// only the first occurrence was booked.
	Degraded bool
	// Replayed reports that an earlier booking with the same idempotency key
	// was returned instead of writing a new one.
	Replayed bool
}

// Book validates, resolves the provider, expands the recurrence and writes
// every occurrence or none of them. The first occurrence that cannot be
// placed is reported in a *domain.ConflictError.
func (s *Service) Book(ctx context.Context, req BookingRequest) (res BookingResult, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Book")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return BookingResult{}, err
	}

	providerID, err := s.resolver.Resolve(ctx, providers.ResolveInput{
		Actor:              req.Actor,
		LocationID:         req.LocationID,
		ProviderIDOverride: req.ProviderIDOverride,
	})
	if err != nil {
		return BookingResult{}, err
	}
	span.SetAttributes(attribute.String("provider.id", providerID))

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	exp := domain.ExpandRecurrence(req.Recurrence, start, end, s.loc)
	if exp.Degraded {
		s.logger.WarnContext(ctx, "recurrence rule could not be evaluated; booking first occurrence only",
			"provider_id", providerID, "err", exp.Err)
	}
	occs, truncated := exp.Collect(s.maxOccurrences)
	if truncated {
		return BookingResult{}, domain.Invalidf(domain.ErrSeriesTooLong, "more than %d occurrences", s.maxOccurrences)
	}
	span.SetAttributes(attribute.Int("occurrences", len(occs)))

	appts := s.materialize(req, providerID, occs, exp.Recurring())
	res = BookingResult{Degraded: exp.Degraded}

	if err := ctx.Err(); err != nil {
		return BookingResult{}, err
	}

	var staged []events.Event
	err = s.calendar.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.CalendarTx) error {
		if strings.TrimSpace(req.IdempotencyKey) != "" {
			replay, ok, err := findReplay(ctx, tx, appts)
			if err != nil || ok {
				res.Appointments, res.Replayed = replay, ok
				return err
			}
		}

		if err := s.checkOccurrences(ctx, tx, providerID, appts, uuid.Nil); err != nil {
			return err
		}
		created, err := tx.CreateAppointments(ctx, appts)
		if errors.Is(err, store.ErrConflict) {
			return &domain.ConflictError{Err: domain.ErrOverlap, Start: appts[0].StartTime, End: appts[0].EndTime}
		}
		if err != nil {
			return err
		}
		res.Appointments = created
		staged, err = s.stage(ctx, tx, events.TypeAppointmentBooked, "", created...)
		return err
	})
	if err != nil {
		return BookingResult{}, err
	}

	if first := res.Appointments[0]; first.InSeries() {
		res.SeriesID = first.SeriesID
	}
	s.notify(ctx, staged)
	return res, nil
}

// materialize turns expanded occurrences into appointment rows. With an
// idempotency key every id is derived from the key so a replay addresses
// the same rows, and each row carries the fingerprint of the request.
func (s *Service) materialize(req BookingRequest, providerID string, occs []domain.Occurrence, recurring bool) []domain.Appointment {
	key := strings.TrimSpace(req.IdempotencyKey)
	var seriesID, fingerprint uuid.UUID
	if recurring {
		seriesID = newID(key, "clinicsched:series:"+providerID+":"+key)
	}
	if key != "" {
		fingerprint = requestFingerprint(req, providerID, len(occs))
	}

	appts := make([]domain.Appointment, 0, len(occs))
	for i, o := range occs {
		a := domain.Appointment{
			ProviderID:     providerID,
			BookedByUserID: req.Actor.UserID,
			PatientID:      strings.TrimSpace(req.PatientID),
			LocationID:     strings.TrimSpace(req.LocationID),
			StartTime:      o.Start,
			EndTime:        o.End,
			Status:         domain.StatusScheduled,
			Notes:          req.Notes,
			SeriesID:       seriesID,
			RequestHash:    fingerprint,
		}
		if i == 0 {
			a.Recurrence = req.Recurrence
		}
		if key != "" {
			a.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("clinicsched:book:"+providerID+":"+key+":"+strconv.Itoa(o.Index)))
		}
		appts = append(appts, a)
	}
	return appts
}

func newID(key, name string) uuid.UUID {
	if key != "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// requestFingerprint identifies everything a booking request asks for, so a
// reused idempotency key can be told apart from a retry.
func requestFingerprint(req BookingRequest, providerID string, occurrences int) uuid.UUID {
	parts := []string{
		providerID,
		strings.TrimSpace(req.PatientID),
		strings.TrimSpace(req.LocationID),
		req.StartTime.UTC().Format(time.RFC3339Nano),
		req.EndTime.UTC().Format(time.RFC3339Nano),
		req.Notes,
		strconv.Itoa(occurrences),
	}
	if r := req.Recurrence; r != nil {
		count, until := "", ""
		if r.Count != nil {
			count = strconv.Itoa(*r.Count)
		}
		if r.Until != nil {
			until = r.Until.UTC().Format(time.RFC3339Nano)
		}
		parts = append(parts, string(r.Frequency), strconv.Itoa(r.Interval), count, until, strings.TrimSpace(r.Custom))
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("clinicsched:request:"+strings.Join(parts, "\x1f")))
}

// findReplay looks for rows written by an earlier request with the same
// idempotency key. A row that exists for a different request is a key reuse.
func findReplay(ctx context.Context, tx store.CalendarTx, appts []domain.Appointment) ([]domain.Appointment, bool, error) {
	first := appts[0]
	existing, err := tx.GetAppointment(ctx, first.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if existing.ProviderID != first.ProviderID || existing.RequestHash != first.RequestHash {
		return nil, false, store.ErrIdempotencyConflict
	}
	if !existing.InSeries() {
		return []domain.Appointment{existing}, true, nil
	}
	series, err := tx.ListSeries(ctx, existing.ProviderID, existing.SeriesID)
	if err != nil {
		return nil, false, err
	}
	return series, true, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
