package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// DelegationRepository stores role delegations.
type DelegationRepository interface {
	Create(ctx context.Context, delegation domain.RoleDelegation) error
	GetByID(ctx context.Context, id string) (*domain.RoleDelegation, error)
	MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error
	MarkExpired(ctx context.Context, id string) error
	// ListDue returns active delegations whose expiry is at or before the cutoff.
	ListDue(ctx context.Context, cutoff time.Time) ([]domain.RoleDelegation, error)
}
