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

// Decision reason strings. Every result carries exactly one of these.
const (
	ReasonGranted            = "granted"
	ReasonGrantedInheritance = "granted by inheritance"
	ReasonAllowedByOverride  = "allowed by override"
	ReasonDeniedByOverride   = "denied by override"
	ReasonNoMatch            = "no matching permission"
	ReasonConditionsNotMet   = "conditions not met"
	ReasonPrincipalNotFound  = "principal not found"
	ReasonStoreUnavailable   = "policy store unavailable"
)

// PermissionResolver yields a role's effective permission set after
// hierarchy resolution.
type PermissionResolver interface {
	ResolveInheritedPermissions(ctx context.Context, roleID string) ([]domain.EffectivePermission, error)
}

// OverrideResolver folds active overrides into a base grant.
type OverrideResolver interface {
	ApplyOverrides(ctx context.Context, roleID, permissionID string, baseGrant bool, actx domain.AccessContext) (bool, string, error)
}

// DecisionMetrics records decision outcomes. Implementations must be safe
// for concurrent use.
type DecisionMetrics interface {
	ObserveDecision(granted bool, reason string, duration time.Duration)
}

// DecideInput is one access check request.
type DecideInput struct {
	PrincipalID  string
	ResourceType string
	ResourceID   string
	Operation    string
	Context      domain.AccessContext
}

// DecisionService answers "may principal P perform operation O on resource R
// right now". Decide never returns an error: every path, including store
// failures, terminates in a PermissionResult with a non-empty reason.
type DecisionService struct {
	identity    port.IdentityResolver
	roles       port.RoleRepository
	delegations port.DelegationRepository
	bindings    port.BindingRepository
	resolver    PermissionResolver
	overrides   OverrideResolver
	audit       port.AuditPublisher
	metrics     DecisionMetrics
	logger      *zap.Logger
}

// NewDecisionService constructs a DecisionService.
func NewDecisionService(
	identity port.IdentityResolver,
	roles port.RoleRepository,
	delegations port.DelegationRepository,
	bindings port.BindingRepository,
	resolver PermissionResolver,
	overrides OverrideResolver,
	audit port.AuditPublisher,
	metrics DecisionMetrics,
	logger *zap.Logger,
) *DecisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionService{
		identity:    identity,
		roles:       roles,
		delegations: delegations,
		bindings:    bindings,
		resolver:    resolver,
		overrides:   overrides,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

type permissionCandidate struct {
	roleID        string
	permission    domain.Permission
	inheritedFrom string
}

// Decide evaluates one access check. Structural matching is served from the
// hierarchy resolver (cache-backed); conditions are evaluated per request
// against the supplied access context.
func (s *DecisionService) Decide(ctx context.Context, input DecideInput) domain.PermissionResult {
	started := time.Now()

	actx := input.Context
	if actx.Now.IsZero() {
		actx.Now = time.Now().UTC()
	}

	result := s.decide(ctx, input, actx)

	s.observe(ctx, input, actx, result, time.Since(started))
	return result
}

func (s *DecisionService) decide(ctx context.Context, input DecideInput, actx domain.AccessContext) domain.PermissionResult {
	principalID := strings.TrimSpace(input.PrincipalID)
	if principalID == "" || strings.TrimSpace(input.ResourceType) == "" || strings.TrimSpace(input.Operation) == "" {
		return domain.PermissionResult{Granted: false, Reason: ReasonNoMatch}
	}

	if _, err := s.identity.ResolvePrincipal(ctx, principalID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PermissionResult{Granted: false, Reason: ReasonPrincipalNotFound}
		}
		return s.unavailable("resolve principal", err)
	}

	grants, err := s.roles.ListByPrincipal(ctx, principalID)
	if err != nil {
		return s.unavailable("list principal roles", err)
	}

	roleIDs := s.activeRoleIDs(ctx, grants, actx.Now)
	if len(roleIDs) == 0 {
		return domain.PermissionResult{Granted: false, Reason: ReasonNoMatch}
	}

	candidates, err := s.matchCandidates(ctx, roleIDs, input)
	if err != nil {
		return s.unavailable("resolve permissions", err)
	}
	if len(candidates) == 0 {
		return domain.PermissionResult{Granted: false, Reason: ReasonNoMatch}
	}

	var (
		deniedByOverride *permissionCandidate
		failedConditions *permissionCandidate
		failedCategory   string
	)

	for i := range candidates {
		candidate := candidates[i]

		granted, overrideReason, err := s.overrides.ApplyOverrides(ctx, candidate.roleID, candidate.permission.ID, true, actx)
		if err != nil {
			return s.unavailable("apply overrides", err)
		}
		if !granted {
			if deniedByOverride == nil {
				deniedByOverride = &candidate
			}
			continue
		}

		ok, category, err := s.conditionsHold(ctx, candidate, actx)
		if err != nil {
			return s.unavailable("evaluate bindings", err)
		}
		if !ok {
			if failedConditions == nil {
				failedConditions = &candidate
				failedCategory = category
			}
			continue
		}

		reason := ReasonGranted
		switch {
		case overrideReason == ReasonAllowedByOverride:
			reason = ReasonAllowedByOverride
		case candidate.inheritedFrom != "":
			reason = ReasonGrantedInheritance
		}

		return domain.PermissionResult{
			Granted:       true,
			Reason:        reason,
			ConditionsMet: true,
			MatchedRoleID: candidate.roleID,
		}
	}

	if deniedByOverride != nil {
		return domain.PermissionResult{
			Granted:       false,
			Reason:        ReasonDeniedByOverride,
			ConditionsMet: true,
			MatchedRoleID: deniedByOverride.roleID,
		}
	}

	return domain.PermissionResult{
		Granted:         false,
		Reason:          ReasonConditionsNotMet,
		ConditionsMet:   false,
		MatchedRoleID:   failedConditions.roleID,
		FailedCondition: failedCategory,
	}
}

// activeRoleIDs filters the principal's grants, dropping delegated roles
// whose delegation is no longer active. Expiry is checked lazily here; the
// background sweep only tidies records.
func (s *DecisionService) activeRoleIDs(ctx context.Context, grants []domain.PrincipalRole, now time.Time) []string {
	seen := make(map[string]bool, len(grants))
	roleIDs := make([]string, 0, len(grants))

	for _, grant := range grants {
		if grant.Source == domain.GrantSourceDelegation {
			if grant.DelegationID == nil {
				continue
			}
			delegation, err := s.delegations.GetByID(ctx, *grant.DelegationID)
			if err != nil {
				s.logger.Warn("failed to load delegation for grant",
					zap.String("delegation_id", *grant.DelegationID),
					zap.Error(err),
				)
				continue
			}
			if delegation.State(now) != domain.DelegationActive {
				continue
			}
		}
		if !seen[grant.RoleID] {
			seen[grant.RoleID] = true
			roleIDs = append(roleIDs, grant.RoleID)
		}
	}

	return roleIDs
}

func (s *DecisionService) matchCandidates(ctx context.Context, roleIDs []string, input DecideInput) ([]permissionCandidate, error) {
	var candidates []permissionCandidate

	for _, roleID := range roleIDs {
		effective, err := s.resolver.ResolveInheritedPermissions(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrHierarchyCycle) {
				// Configuration error on this role's subgraph; the resolver
				// already reported it. Other roles may still grant.
				continue
			}
			return nil, err
		}
		for _, entry := range effective {
			if entry.Permission.Matches(input.ResourceType, input.ResourceID, input.Operation) {
				candidates = append(candidates, permissionCandidate{
					roleID:        roleID,
					permission:    entry.Permission,
					inheritedFrom: entry.InheritedFrom,
				})
			}
		}
	}

	return candidates, nil
}

func (s *DecisionService) conditionsHold(ctx context.Context, candidate permissionCandidate, actx domain.AccessContext) (bool, string, error) {
	bindings, err := s.bindings.ListActive(ctx, candidate.roleID, candidate.permission.ID)
	if err != nil {
		return false, "", fmt.Errorf("list bindings for role %s permission %s: %w", candidate.roleID, candidate.permission.ID, err)
	}

	for _, binding := range bindings {
		if ok, category := EvaluateConditions(binding.Conditions, actx); !ok {
			return false, category, nil
		}
	}

	return true, "", nil
}

func (s *DecisionService) unavailable(stage string, err error) domain.PermissionResult {
	s.logger.Error("decision degraded to deny",
		zap.String("stage", stage),
		zap.Error(err),
	)
	return domain.PermissionResult{Granted: false, Reason: ReasonStoreUnavailable}
}

func (s *DecisionService) observe(ctx context.Context, input DecideInput, actx domain.AccessContext, result domain.PermissionResult, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveDecision(result.Granted, result.Reason, duration)
	}

	if s.audit == nil {
		return
	}

	event := domain.DecisionEvent{
		EventID:         uuid.NewString(),
		PrincipalID:     input.PrincipalID,
		ResourceType:    input.ResourceType,
		ResourceID:      input.ResourceID,
		Operation:       input.Operation,
		Granted:         result.Granted,
		Reason:          result.Reason,
		MatchedRoleID:   result.MatchedRoleID,
		FailedCondition: result.FailedCondition,
		OriginIP:        actx.OriginIP,
		DecidedAt:       actx.Now,
	}

	if err := s.audit.PublishDecision(ctx, event); err != nil {
		s.logger.Warn("failed to publish decision event", zap.Error(err))
	}
}
