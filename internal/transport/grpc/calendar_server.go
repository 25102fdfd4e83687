package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/availability"
	"clinicsched/backend/internal/service/blocks"
)

func (s *Server) ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	windows, err := s.availability.ListForProviderAndDay(ctx, req.ProviderID, time.Weekday(req.DayOfWeek))
	if err != nil {
		return nil, statusError(log.With(slog.String("provider_id", req.ProviderID)), "availability list", err)
	}

	out := make([]AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		out = append(out, toAvailabilityWindow(w))
	}
	return &ListAvailabilityResponse{Windows: out}, nil
}

func (s *Server) CreateAvailability(ctx context.Context, req *CreateAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	start, end, err := parseClockRange(req.StartTime, req.EndTime)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_clock_time"))
		return nil, err
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	w, err := s.availability.Create(ctx, availability.CreateWindowInput{
		ResolveInput: scope,
		DayOfWeek:    time.Weekday(req.DayOfWeek),
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("user_id", scope.Actor.UserID)), "availability create", err)
	}

	log.Info("availability window created", slog.String("window_id", w.ID.String()), slog.String("provider_id", w.ProviderID))
	return &AvailabilityResponse{Window: toAvailabilityWindow(w)}, nil
}

func (s *Server) UpdateAvailability(ctx context.Context, req *UpdateAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.WindowID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "window_id must be a UUID")
	}
	start, end, err := parseClockRange(req.StartTime, req.EndTime)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_clock_time"))
		return nil, err
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	w, err := s.availability.Update(ctx, availability.UpdateWindowInput{
		ResolveInput: scope,
		WindowID:     id,
		DayOfWeek:    time.Weekday(req.DayOfWeek),
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("window_id", id.String())), "availability update", err)
	}

	log.Info("availability window updated", slog.String("window_id", w.ID.String()))
	return &AvailabilityResponse{Window: toAvailabilityWindow(w)}, nil
}

func (s *Server) DeleteAvailability(ctx context.Context, req *DeleteAvailabilityRequest) (*Empty, error) {
	log := s.log.With(slog.String("rpc", "DeleteAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.WindowID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "window_id must be a UUID")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	if err := s.availability.Delete(ctx, availability.DeleteWindowInput{ResolveInput: scope, WindowID: id}); err != nil {
		return nil, statusError(log.With(slog.String("window_id", id.String())), "availability delete", err)
	}

	log.Info("availability window deleted", slog.String("window_id", id.String()))
	return &Empty{}, nil
}

func (s *Server) ListBlocks(ctx context.Context, req *ListBlocksRequest) (*ListBlocksResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBlocks"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_window"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	blks, err := s.blocks.ListForProvider(ctx, req.ProviderID, req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, statusError(log.With(slog.String("provider_id", req.ProviderID)), "blocks list", err)
	}

	out := make([]Block, 0, len(blks))
	for _, b := range blks {
		out = append(out, toBlock(b))
	}
	return &ListBlocksResponse{Blocks: out}, nil
}

func (s *Server) CreateBlock(ctx context.Context, req *CreateBlockRequest) (*BlockResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBlock"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	b, err := s.blocks.Create(ctx, blocks.CreateBlockInput{
		ResolveInput: scope,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("user_id", scope.Actor.UserID)), "block create", err)
	}

	log.Info("block created", slog.String("block_id", b.ID.String()), slog.String("provider_id", b.ProviderID))
	return &BlockResponse{Block: toBlock(b)}, nil
}

func (s *Server) UpdateBlock(ctx context.Context, req *UpdateBlockRequest) (*BlockResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateBlock"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.BlockID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "block_id must be a UUID")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	b, err := s.blocks.Update(ctx, blocks.UpdateBlockInput{
		ResolveInput: scope,
		BlockID:      id,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, statusError(log.With(slog.String("block_id", id.String())), "block update", err)
	}

	log.Info("block updated", slog.String("block_id", b.ID.String()))
	return &BlockResponse{Block: toBlock(b)}, nil
}

func (s *Server) DeleteBlock(ctx context.Context, req *DeleteBlockRequest) (*Empty, error) {
	log := s.log.With(slog.String("rpc", "DeleteBlock"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.BlockID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "block_id must be a UUID")
	}
	scope, err := resolveInput(ctx, req.CalendarScope)
	if err != nil {
		return nil, err
	}

	if err := s.blocks.Delete(ctx, blocks.DeleteBlockInput{ResolveInput: scope, BlockID: id}); err != nil {
		return nil, statusError(log.With(slog.String("block_id", id.String())), "block delete", err)
	}

	log.Info("block deleted", slog.String("block_id", id.String()))
	return &Empty{}, nil
}

func parseClockRange(startRaw, endRaw string) (domain.ClockTime, domain.ClockTime, error) {
	start, err := domain.ParseClockTime(startRaw)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, "start_time must be HH:MM")
	}
	end, err := domain.ParseClockTime(endRaw)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, "end_time must be HH:MM")
	}
	return start, end, nil
}
