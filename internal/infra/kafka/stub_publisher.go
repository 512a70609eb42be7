package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
)

// StubPublisher logs audit events instead of publishing them. Used when no
// Kafka brokers are configured, typically in local development and tests.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.AuditPublisher = (*StubPublisher)(nil)

// NewStubPublisher creates a publisher that writes events to the log
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) PublishDecision(_ context.Context, event domain.DecisionEvent) error {
	p.logger.Info("audit event (stub)",
		zap.String("event_type", EventTypeDecisionEvaluated),
		zap.String("principal_id", event.PrincipalID),
		zap.String("resource_type", event.ResourceType),
		zap.String("resource_id", event.ResourceID),
		zap.String("operation", event.Operation),
		zap.Bool("granted", event.Granted),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (p *StubPublisher) PublishPolicyMutation(_ context.Context, event domain.PolicyMutationEvent) error {
	p.logger.Info("audit event (stub)",
		zap.String("event_type", EventTypeMutationApplied),
		zap.String("operation", event.Operation),
		zap.String("target_type", event.TargetType),
		zap.String("target_id", event.TargetID),
		zap.String("result", event.Result),
	)
	return nil
}

func (p *StubPublisher) PublishDelegationChanged(_ context.Context, event domain.DelegationChangedEvent) error {
	p.logger.Info("audit event (stub)",
		zap.String("event_type", EventTypeDelegationChanged),
		zap.String("delegation_id", event.DelegationID),
		zap.String("delegator_id", event.DelegatorID),
		zap.String("delegatee_id", event.DelegateeID),
		zap.String("role_id", event.RoleID),
		zap.String("action", event.Action),
	)
	return nil
}

func (p *StubPublisher) PublishRoleAutoAssigned(_ context.Context, event domain.RoleAutoAssignedEvent) error {
	p.logger.Info("audit event (stub)",
		zap.String("event_type", EventTypeRoleAutoAssigned),
		zap.String("principal_id", event.PrincipalID),
		zap.String("role_id", event.RoleID),
		zap.String("rule_id", event.RuleID),
		zap.String("trigger_type", event.TriggerType),
	)
	return nil
}
