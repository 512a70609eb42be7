package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// IdentityResolver resolves a principal identifier to the record the engine
// needs: existence, creation time, and attributes used by assignment-rule
// predicates. Authentication itself lives upstream.
type IdentityResolver interface {
	ResolvePrincipal(ctx context.Context, principalID string) (*domain.Principal, error)
}
