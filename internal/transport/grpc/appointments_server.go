package grpc

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/service/availability"
	"clinicsched/backend/internal/service/blocks"
	"clinicsched/backend/internal/service/providers"
)

// Metadata keys set by the upstream API layer after authentication.
const (
	metadataUserID            = "x-user-id"
	metadataUserRole          = "x-user-role"
	metadataCanManageCalendar = "x-can-manage-calendar"
)

type Server struct {
	appointments appointmentsService
	availability availabilityService
	blocks       blocksService
	log          *slog.Logger
}

var _ SchedulingServiceServer = (*Server)(nil)

type appointmentsService interface {
	Book(ctx context.Context, req appointments.BookingRequest) (appointments.BookingResult, error)
	Reschedule(ctx context.Context, in appointments.RescheduleInput) (domain.Appointment, error)
	TransitionStatus(ctx context.Context, in appointments.TransitionInput) (domain.Appointment, error)
	Delete(ctx context.Context, in appointments.DeleteInput) error
	CancelSeries(ctx context.Context, in appointments.CancelSeriesInput) (int, error)
	List(ctx context.Context, in appointments.ListInput) ([]domain.Appointment, error)
	PreviewSeries(ctx context.Context, in appointments.PreviewInput) (appointments.PreviewResult, error)
}

type availabilityService interface {
	ListForProviderAndDay(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error)
	Create(ctx context.Context, in availability.CreateWindowInput) (domain.AvailabilityWindow, error)
	Update(ctx context.Context, in availability.UpdateWindowInput) (domain.AvailabilityWindow, error)
	Delete(ctx context.Context, in availability.DeleteWindowInput) error
}

type blocksService interface {
	ListForProvider(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error)
	Create(ctx context.Context, in blocks.CreateBlockInput) (domain.Block, error)
	Update(ctx context.Context, in blocks.UpdateBlockInput) (domain.Block, error)
	Delete(ctx context.Context, in blocks.DeleteBlockInput) error
}

func NewServer(appts appointmentsService, avail availabilityService, blk blocksService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		appointments: appts,
		availability: avail,
		blocks:       blk,
		log:          log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *Server) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("location_id", req.LocationID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_actor"))
		return nil, err
	}

	res, err := s.appointments.Book(ctx, appointments.BookingRequest{
		Actor:              actor,
		LocationID:         req.LocationID,
		ProviderIDOverride: req.ProviderID,
		PatientID:          req.PatientID,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Recurrence:         req.Recurrence,
		Notes:              req.Notes,
		IdempotencyKey:     idempotencyKey(ctx),
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("user_id", actor.UserID), slog.String("location_id", req.LocationID)), "appointment booking", err)
	}

	first := res.Appointments[0]
	log.Info(
		"appointment booked",
		slog.String("appointment_id", first.ID.String()),
		slog.String("provider_id", first.ProviderID),
		slog.String("user_id", actor.UserID),
		slog.Int("occurrences", len(res.Appointments)),
		slog.Bool("replayed", res.Replayed),
		slog.Time("start_time", first.StartTime),
	)

	return &BookAppointmentResponse{
		Appointments: toAppointments(res.Appointments),
		SeriesID:     seriesIDString(res.SeriesID),
		Degraded:     res.Degraded,
		Replayed:     res.Replayed,
	}, nil
}

func (s *Server) RescheduleAppointment(ctx context.Context, req *RescheduleAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.Reschedule(ctx, appointments.RescheduleInput{
		ResolveInput:   scope,
		AppointmentRef: req.AppointmentID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Notes:          req.Notes,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("appointment_id", req.AppointmentID)), "appointment reschedule", err)
	}

	log.Info("appointment rescheduled", slog.String("appointment_id", appt.ID.String()), slog.Time("start_time", appt.StartTime))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) UpdateAppointmentStatus(ctx context.Context, req *UpdateAppointmentStatusRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointmentStatus"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.TransitionStatus(ctx, appointments.TransitionInput{
		ResolveInput:   scope,
		AppointmentRef: req.AppointmentID,
		Status:         domain.AppointmentStatus(req.Status),
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("appointment_id", req.AppointmentID)), "appointment status update", err)
	}

	log.Info("appointment status updated", slog.String("appointment_id", appt.ID.String()), slog.String("status", string(appt.Status)))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) DeleteAppointment(ctx context.Context, req *DeleteAppointmentRequest) (*Empty, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	if err := s.appointments.Delete(ctx, appointments.DeleteInput{ResolveInput: scope, AppointmentRef: req.AppointmentID}); err != nil {
		return nil, statusError(log.With(slog.String("appointment_id", req.AppointmentID)), "appointment delete", err)
	}

	log.Info("appointment deleted", slog.String("appointment_id", req.AppointmentID), slog.String("user_id", scope.Actor.UserID))
	return &Empty{}, nil
}

func (s *Server) CancelSeries(ctx context.Context, req *CancelSeriesRequest) (*CancelSeriesResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelSeries"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	seriesID, err := uuid.Parse(req.SeriesID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "series_id must be a UUID")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	n, err := s.appointments.CancelSeries(ctx, appointments.CancelSeriesInput{ResolveInput: scope, SeriesID: seriesID})
	if err != nil {
		return nil, statusError(log.With(slog.String("series_id", seriesID.String())), "series cancel", err)
	}

	log.Info("series cancelled", slog.String("series_id", seriesID.String()), slog.Int("cancelled", n))
	return &CancelSeriesResponse{Cancelled: n}, nil
}

func (s *Server) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_window"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	appts, err := s.appointments.List(ctx, appointments.ListInput{
		ProviderID:       req.ProviderID,
		WindowStart:      req.WindowStart,
		WindowEnd:        req.WindowEnd,
		IncludeCancelled: req.IncludeCancelled,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("provider_id", req.ProviderID)), "appointments list", err)
	}

	log.Debug(
		"appointments listed",
		slog.String("provider_id", req.ProviderID),
		slog.Int("count", len(appts)),
		slog.Time("window_start", req.WindowStart),
		slog.Time("window_end", req.WindowEnd),
	)
	return &ListAppointmentsResponse{Appointments: toAppointments(appts)}, nil
}

func (s *Server) PreviewSeries(ctx context.Context, req *PreviewSeriesRequest) (*PreviewSeriesResponse, error) {
	log := s.log.With(slog.String("rpc", "PreviewSeries"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	var seriesID uuid.UUID
	if req.SeriesID != "" {
		id, err := uuid.Parse(req.SeriesID)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
			return nil, status.Error(codes.InvalidArgument, "series_id must be a UUID")
		}
		seriesID = id
	}

	res, err := s.appointments.PreviewSeries(ctx, appointments.PreviewInput{
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Recurrence: req.Recurrence,
		SeriesID:   seriesID,
	})
	if err != nil {
		return nil, statusError(log, "series preview", err)
	}
	return &PreviewSeriesResponse{Occurrences: toOccurrences(res.Occurrences), Degraded: res.Degraded}, nil
}

func idempotencyKey(ctx context.Context) string {
	return firstMetadata(ctx, "idempotency-key", "x-idempotency-key")
}

func firstMetadata(ctx context.Context, keys ...string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, key := range keys {
		if values := md.Get(key); len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// actorFromContext reads the authenticated caller from request metadata.
func actorFromContext(ctx context.Context) (domain.Actor, error) {
	userID := firstMetadata(ctx, metadataUserID)
	if userID == "" {
		return domain.Actor{}, status.Error(codes.Unauthenticated, metadataUserID+" metadata is required")
	}
	role, ok := domain.ParseRole(firstMetadata(ctx, metadataUserRole))
	if !ok {
		return domain.Actor{}, status.Error(codes.InvalidArgument, metadataUserRole+" must be one of provider, nurse, front_desk, assistant")
	}
	canManage, _ := strconv.ParseBool(firstMetadata(ctx, metadataCanManageCalendar))
	return domain.Actor{UserID: userID, Role: role, CanManageCalendar: canManage}, nil
}

func resolveInput(ctx context.Context, scope CalendarScope) (providers.ResolveInput, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return providers.ResolveInput{}, err
	}
	return providers.ResolveInput{
		Actor:              actor,
		LocationID:         scope.LocationID,
		ProviderIDOverride: scope.ProviderID,
	}, nil
}
