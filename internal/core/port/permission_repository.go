package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// PermissionRepository manages the permission catalog.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) error
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
}
