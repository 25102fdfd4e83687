package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

// statusError maps a scheduling error to a gRPC status and logs it at a
// level matching its family. Expected business outcomes are not errors of
// the service.
func statusError(log *slog.Logger, op string, err error) error {
	var (
		vErr *domain.ValidationError
		aErr *domain.AuthorizationError
		rErr *domain.ResolutionError
		cErr *domain.ConflictError
		sErr *domain.StateError
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.String("op", op), slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &aErr):
		log.Warn(op+" denied", slog.Any("err", err), slog.String("actor_id", aErr.ActorID))
		return status.Error(codes.PermissionDenied, aErr.Error())
	case errors.As(err, &rErr):
		log.Info(op+" unresolved", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, rErr.Error())
	case errors.As(err, &cErr):
		log.Info(op+" conflict", slog.Any("err", err), slog.Int("occurrence", cErr.Occurrence))
		return status.Error(codes.FailedPrecondition, cErr.Error())
	case errors.As(err, &sErr):
		log.Info(op+" rejected", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, sErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info(op+" target not found")
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict")
		return status.Error(codes.AlreadyExists, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "That time is no longer available. Pick a different slot.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", slog.Any("err", err))
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(op+" failed", slog.Any("err", err))
	return status.Error(codes.Internal, "internal error")
}
