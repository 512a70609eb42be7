package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// HierarchyCache stores resolved effective permission sets per role. Reads
// must be safe under heavy concurrency; invalidation is per role key and
// must not block reads of unrelated roles.
type HierarchyCache interface {
	Get(ctx context.Context, roleID string) ([]domain.EffectivePermission, bool, error)
	Set(ctx context.Context, roleID string, permissions []domain.EffectivePermission) error
	Invalidate(ctx context.Context, roleIDs ...string) error
}
