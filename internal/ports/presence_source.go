package ports

import (
	"context"

	"github.com/bnema/presence-tracker/internal/domain"
)

// PresenceSource returns the current status of the observed population.
type PresenceSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// IdentityResolver maps an entity back to its display name. It returns
// domain.ErrEntityNotFound when the entity no longer exists.
type IdentityResolver interface {
	ResolveDisplayName(ctx context.Context, id domain.EntityID) (string, error)
}
