package port

import (
	"context"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// AuditPublisher receives one structured event per decision and per policy
// mutation. Publication is fire-and-forget: failures are logged by the
// implementation and never surface into the decision path.
type AuditPublisher interface {
	PublishDecision(ctx context.Context, event domain.DecisionEvent) error
	PublishPolicyMutation(ctx context.Context, event domain.PolicyMutationEvent) error
	PublishDelegationChanged(ctx context.Context, event domain.DelegationChangedEvent) error
	PublishRoleAutoAssigned(ctx context.Context, event domain.RoleAutoAssignedEvent) error
}
