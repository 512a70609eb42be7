package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// BindingRepository stores conditional permission bindings.
type BindingRepository interface {
	Create(ctx context.Context, binding domain.ConditionalPermissionBinding) error
	GetByID(ctx context.Context, id string) (*domain.ConditionalPermissionBinding, error)
	Deactivate(ctx context.Context, id string) error
	// ListActive returns the active bindings for one (role, permission) grant.
	ListActive(ctx context.Context, roleID, permissionID string) ([]domain.ConditionalPermissionBinding, error)
}
