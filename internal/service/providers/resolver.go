// Package providers decides whose calendar a scheduling request acts on.
package providers

import (
	"context"
	"errors"
	"strings"

	"clinicsched/backend/internal/directory"
	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

type Resolver struct {
	directory directory.Directory
}

func NewResolver(dir directory.Directory) *Resolver {
	return &Resolver{directory: dir}
}

type ResolveInput struct {
	Actor              domain.Actor
	LocationID         string
	ProviderIDOverride string
}

// Resolve returns the provider whose calendar the actor may act on.
// Providers always act on their own calendar. Delegates act on the calendar
// of the provider assigned to the location, and only with calendar rights.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (string, error) {
	actor := in.Actor
	override := strings.TrimSpace(in.ProviderIDOverride)

	switch {
	case actor.Role == domain.RoleProvider:
		if override != "" && override != actor.UserID {
			return "", &domain.AuthorizationError{
				Err:        domain.ErrUnauthorizedProviderMismatch,
				ActorID:    actor.UserID,
				ProviderID: override,
			}
		}
		return actor.UserID, nil

	case actor.Role.Delegate():
		if !actor.CanManageCalendar {
			return "", &domain.AuthorizationError{Err: domain.ErrInsufficientPermission, ActorID: actor.UserID}
		}
		providerID, err := r.directory.FindProviderForLocation(ctx, in.LocationID)
		if errors.Is(err, store.ErrNotFound) {
			return "", &domain.ResolutionError{Err: domain.ErrNoProviderForLocation, LocationID: in.LocationID}
		}
		if err != nil {
			return "", err
		}
		if override != "" && override != providerID {
			return "", &domain.AuthorizationError{
				Err:        domain.ErrUnauthorizedProviderMismatch,
				ActorID:    actor.UserID,
				ProviderID: override,
			}
		}
		return providerID, nil
	}

	return "", &domain.AuthorizationError{Err: domain.ErrInsufficientPermission, ActorID: actor.UserID}
}
