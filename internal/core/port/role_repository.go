package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// RoleRepository handles role storage and role grants to principals.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error)
	RevokePermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error)
	ListDirectPermissions(ctx context.Context, roleID string) ([]domain.Permission, error)
	AssignToPrincipal(ctx context.Context, grant domain.PrincipalRole) error
	RemoveFromPrincipal(ctx context.Context, principalID, roleID string) error
	// RemoveDelegatedGrant deletes only the grant conferred by the
	// delegation; grants of the same role from other sources are untouched.
	RemoveDelegatedGrant(ctx context.Context, delegationID string) error
	ListByPrincipal(ctx context.Context, principalID string) ([]domain.PrincipalRole, error)
}
