package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// AssignmentRuleRepository stores dynamic role assignment rules.
type AssignmentRuleRepository interface {
	Create(ctx context.Context, rule domain.RoleAssignmentRule) error
	GetByID(ctx context.Context, id string) (*domain.RoleAssignmentRule, error)
	Deactivate(ctx context.Context, id string) error
	ListActiveByTrigger(ctx context.Context, triggerType string) ([]domain.RoleAssignmentRule, error)
}
