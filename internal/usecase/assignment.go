package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// ErrInvalidRule indicates a rule with a missing trigger or inconsistent
// condition bounds.
var ErrInvalidRule = errors.New("invalid assignment rule")

// AssignmentService evaluates dynamic role assignment rules against
// principal events. Assignments are idempotent: replaying an event never
// produces a duplicate grant.
type AssignmentService struct {
	rules    port.AssignmentRuleRepository
	roles    port.RoleRepository
	identity port.IdentityResolver
	audit    port.AuditPublisher
	logger   *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(
	rules port.AssignmentRuleRepository,
	roles port.RoleRepository,
	identity port.IdentityResolver,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		rules:    rules,
		roles:    roles,
		identity: identity,
		audit:    audit,
		logger:   logger,
	}
}

// OnEvent runs every active rule registered for the trigger against the
// principal and the event attributes. It returns the role ids newly assigned.
// Event attributes take precedence over stored principal attributes when the
// same key appears in both.
func (s *AssignmentService) OnEvent(ctx context.Context, triggerType, principalID string, attributes map[string]string) ([]string, error) {
	triggerType = strings.TrimSpace(triggerType)
	principalID = strings.TrimSpace(principalID)
	if triggerType == "" || principalID == "" {
		return nil, fmt.Errorf("trigger type and principal id are required")
	}

	principal, err := s.identity.ResolvePrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve principal %s: %w", principalID, err)
	}

	grants, err := s.roles.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list roles for principal %s: %w", principalID, err)
	}
	held := make(map[string]bool, len(grants))
	for _, grant := range grants {
		held[grant.RoleID] = true
	}

	rules, err := s.rules.ListActiveByTrigger(ctx, triggerType)
	if err != nil {
		return nil, fmt.Errorf("list rules for trigger %s: %w", triggerType, err)
	}

	merged := mergeAttributes(principal.Attributes, attributes)
	now := time.Now().UTC()

	var assigned []string
	for _, rule := range rules {
		if !ruleSatisfied(rule.Conditions, *principal, held, merged) {
			continue
		}
		if held[rule.TargetRoleID] {
			continue
		}

		ruleID := rule.ID
		grant := domain.PrincipalRole{
			PrincipalID: principalID,
			RoleID:      rule.TargetRoleID,
			AssignedAt:  now,
			Source:      domain.GrantSourceRule,
			RuleID:      &ruleID,
		}
		if err := s.roles.AssignToPrincipal(ctx, grant); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				held[rule.TargetRoleID] = true
				continue
			}
			return assigned, fmt.Errorf("assign role %s via rule %s: %w", rule.TargetRoleID, rule.ID, err)
		}

		held[rule.TargetRoleID] = true
		assigned = append(assigned, rule.TargetRoleID)
		s.publishAutoAssign(ctx, principalID, rule, now)
	}

	return assigned, nil
}

// CreateRuleInput captures the payload for creating an assignment rule.
type CreateRuleInput struct {
	Name         string
	Description  *string
	TriggerType  string
	TargetRoleID string
	Conditions   domain.RuleConditions
}

// CreateRule validates and persists an assignment rule.
func (s *AssignmentService) CreateRule(ctx context.Context, actorID string, input CreateRuleInput) (*domain.RoleAssignmentRule, error) {
	name := strings.TrimSpace(input.Name)
	triggerType := strings.TrimSpace(input.TriggerType)
	targetRoleID := strings.TrimSpace(input.TargetRoleID)
	if name == "" || triggerType == "" || targetRoleID == "" {
		return nil, fmt.Errorf("%w: name, trigger type and target role are required", ErrInvalidRule)
	}

	conds := input.Conditions
	if conds.CreatedAfter != nil && conds.CreatedBefore != nil && !conds.CreatedAfter.Before(*conds.CreatedBefore) {
		return nil, fmt.Errorf("%w: created_after must precede created_before", ErrInvalidRule)
	}

	if _, err := s.roles.GetByID(ctx, targetRoleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("role %s: %w", targetRoleID, ErrRoleNotFound)
		}
		return nil, fmt.Errorf("lookup role %s: %w", targetRoleID, err)
	}

	rule := domain.RoleAssignmentRule{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  input.Description,
		TriggerType:  triggerType,
		TargetRoleID: targetRoleID,
		Conditions:   conds,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create assignment rule: %w", err)
	}

	s.publishMutation(ctx, actorID, "rule.created", rule.ID, map[string]any{
		"trigger_type":   triggerType,
		"target_role_id": targetRoleID,
	})

	return &rule, nil
}

// DeactivateRule stops a rule from matching future events. Grants already
// made by the rule are left in place.
func (s *AssignmentService) DeactivateRule(ctx context.Context, actorID, ruleID string) error {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return fmt.Errorf("rule id is required")
	}

	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("get assignment rule: %w", err)
	}

	if err := s.rules.Deactivate(ctx, ruleID); err != nil {
		return fmt.Errorf("deactivate assignment rule: %w", err)
	}

	s.publishMutation(ctx, actorID, "rule.deactivated", ruleID, map[string]any{
		"trigger_type":   rule.TriggerType,
		"target_role_id": rule.TargetRoleID,
	})

	return nil
}

// ruleSatisfied reports whether every configured predicate holds. Absent
// predicates always pass.
func ruleSatisfied(conds domain.RuleConditions, principal domain.Principal, held map[string]bool, attributes map[string]string) bool {
	if conds.CreatedAfter != nil && !principal.CreatedAt.After(*conds.CreatedAfter) {
		return false
	}
	if conds.CreatedBefore != nil && !principal.CreatedAt.Before(*conds.CreatedBefore) {
		return false
	}
	if conds.HasRole != "" && !held[conds.HasRole] {
		return false
	}
	for key, want := range conds.Attributes {
		if attributes[key] != want {
			return false
		}
	}
	return true
}

func mergeAttributes(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func (s *AssignmentService) publishAutoAssign(ctx context.Context, principalID string, rule domain.RoleAssignmentRule, at time.Time) {
	if s.audit == nil {
		return
	}

	event := domain.RoleAutoAssignedEvent{
		EventID:     uuid.NewString(),
		PrincipalID: principalID,
		RoleID:      rule.TargetRoleID,
		RuleID:      rule.ID,
		TriggerType: rule.TriggerType,
		OccurredAt:  at,
	}

	if err := s.audit.PublishRoleAutoAssigned(ctx, event); err != nil {
		s.logger.Warn("failed to publish auto-assignment event", zap.Error(err))
	}
}

func (s *AssignmentService) publishMutation(ctx context.Context, actorID, operation, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.PolicyMutationEvent{
		EventID:    uuid.NewString(),
		Operation:  operation,
		ActorID:    actorID,
		TargetType: "assignment_rule",
		TargetID:   targetID,
		Result:     "ok",
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := s.audit.PublishPolicyMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish policy mutation event", zap.Error(err))
	}
}
