package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// OverrideRepository stores permission overrides.
type OverrideRepository interface {
	Create(ctx context.Context, override domain.PermissionOverride) error
	GetByID(ctx context.Context, id string) (*domain.PermissionOverride, error)
	Deactivate(ctx context.Context, id string) error
	// ListActive returns the active overrides for one (role, permission) pair.
	ListActive(ctx context.Context, roleID, permissionID string) ([]domain.PermissionOverride, error)
}
