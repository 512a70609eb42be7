package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// HierarchyRepository stores the directed role hierarchy graph.
type HierarchyRepository interface {
	Create(ctx context.Context, edge domain.RoleHierarchyEdge) error
	GetByID(ctx context.Context, id string) (*domain.RoleHierarchyEdge, error)
	Deactivate(ctx context.Context, id string) error
	// ListActiveByChild returns active incoming edges where the role is the child.
	ListActiveByChild(ctx context.Context, childRoleID string) ([]domain.RoleHierarchyEdge, error)
	// ListActiveByParent returns active outgoing edges where the role is the parent.
	ListActiveByParent(ctx context.Context, parentRoleID string) ([]domain.RoleHierarchyEdge, error)
}
