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

var (
	// ErrDelegatorLacksRole indicates the delegator does not directly hold
	// the role being delegated.
	ErrDelegatorLacksRole = errors.New("delegator does not hold the role")
	// ErrDelegateeAlreadyHolds indicates the delegatee already holds the
	// role through some grant, so a delegation would be redundant.
	ErrDelegateeAlreadyHolds = errors.New("delegatee already holds the role")
	// ErrDelegationNotActive indicates the delegation already expired or was
	// revoked.
	ErrDelegationNotActive = errors.New("delegation is not active")
	// ErrInvalidExpiry indicates the requested expiry is not in the future.
	ErrInvalidExpiry = errors.New("delegation expiry must be in the future")
)

// DelegationService manages time-bounded role delegations. Expiry is
// enforced lazily at decision time; ExpireDue exists only to tidy records
// and emit the audit trail.
type DelegationService struct {
	delegations port.DelegationRepository
	roles       port.RoleRepository
	identity    port.IdentityResolver
	audit       port.AuditPublisher
	logger      *zap.Logger
}

// NewDelegationService constructs a DelegationService.
func NewDelegationService(
	delegations port.DelegationRepository,
	roles port.RoleRepository,
	identity port.IdentityResolver,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *DelegationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegationService{
		delegations: delegations,
		roles:       roles,
		identity:    identity,
		audit:       audit,
		logger:      logger,
	}
}

// Delegate grants the role to the delegatee until expiresAt. The delegator
// must hold the role directly; delegated and rule-assigned grants cannot be
// re-delegated. No active delegation survives a failure.
func (s *DelegationService) Delegate(ctx context.Context, delegatorID, delegateeID, roleID string, expiresAt time.Time) (*domain.RoleDelegation, error) {
	delegatorID = strings.TrimSpace(delegatorID)
	delegateeID = strings.TrimSpace(delegateeID)
	roleID = strings.TrimSpace(roleID)
	if delegatorID == "" || delegateeID == "" || roleID == "" {
		return nil, fmt.Errorf("delegator, delegatee and role ids are required")
	}
	if delegatorID == delegateeID {
		return nil, fmt.Errorf("cannot delegate a role to oneself")
	}

	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return nil, ErrInvalidExpiry
	}

	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
		}
		return nil, fmt.Errorf("lookup role %s: %w", roleID, err)
	}

	if _, err := s.identity.ResolvePrincipal(ctx, delegateeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("delegatee %s: %w", delegateeID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve delegatee %s: %w", delegateeID, err)
	}

	holdsDirectly, err := s.holdsRoleDirectly(ctx, delegatorID, roleID)
	if err != nil {
		return nil, err
	}
	if !holdsDirectly {
		return nil, ErrDelegatorLacksRole
	}

	delegateeGrants, err := s.roles.ListByPrincipal(ctx, delegateeID)
	if err != nil {
		return nil, fmt.Errorf("list roles for principal %s: %w", delegateeID, err)
	}
	for _, grant := range delegateeGrants {
		if grant.RoleID == roleID {
			return nil, ErrDelegateeAlreadyHolds
		}
	}

	delegation := domain.RoleDelegation{
		ID:          uuid.NewString(),
		DelegatorID: delegatorID,
		DelegateeID: delegateeID,
		RoleID:      roleID,
		DelegatedAt: now,
		ExpiresAt:   expiresAt.UTC(),
		Active:      true,
	}

	if err := s.delegations.Create(ctx, delegation); err != nil {
		return nil, fmt.Errorf("create delegation: %w", err)
	}

	grant := domain.PrincipalRole{
		PrincipalID:  delegateeID,
		RoleID:       roleID,
		AssignedAt:   now,
		Source:       domain.GrantSourceDelegation,
		DelegationID: &delegation.ID,
	}
	if err := s.roles.AssignToPrincipal(ctx, grant); err != nil {
		if revokeErr := s.delegations.MarkRevoked(ctx, delegation.ID, now); revokeErr != nil {
			s.logger.Error("failed to roll back delegation after grant failure",
				zap.String("delegation_id", delegation.ID),
				zap.Error(revokeErr),
			)
		}
		return nil, fmt.Errorf("grant delegated role: %w", err)
	}

	s.publishChange(ctx, delegation, "delegated", now)
	return &delegation, nil
}

// Revoke terminates a delegation before its expiry. Revocation takes effect
// on the next decision for the delegatee.
func (s *DelegationService) Revoke(ctx context.Context, delegationID string) error {
	delegationID = strings.TrimSpace(delegationID)
	if delegationID == "" {
		return fmt.Errorf("delegation id is required")
	}

	delegation, err := s.delegations.GetByID(ctx, delegationID)
	if err != nil {
		return fmt.Errorf("get delegation: %w", err)
	}

	now := time.Now().UTC()
	if delegation.State(now) != domain.DelegationActive {
		return ErrDelegationNotActive
	}

	if err := s.delegations.MarkRevoked(ctx, delegationID, now); err != nil {
		return fmt.Errorf("mark delegation revoked: %w", err)
	}

	if err := s.roles.RemoveDelegatedGrant(ctx, delegationID); err != nil {
		s.logger.Warn("failed to remove delegated role grant",
			zap.String("delegation_id", delegationID),
			zap.Error(err),
		)
	}

	s.publishChange(ctx, *delegation, "revoked", now)
	return nil
}

// ExpireDue sweeps delegations whose expiry has passed, marking them expired
// and removing the delegated grants. It returns the number swept.
func (s *DelegationService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.delegations.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due delegations: %w", err)
	}

	swept := 0
	for _, delegation := range due {
		if err := s.delegations.MarkExpired(ctx, delegation.ID); err != nil {
			s.logger.Warn("failed to mark delegation expired",
				zap.String("delegation_id", delegation.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.roles.RemoveDelegatedGrant(ctx, delegation.ID); err != nil {
			s.logger.Warn("failed to remove expired delegated grant",
				zap.String("delegation_id", delegation.ID),
				zap.Error(err),
			)
		}
		s.publishChange(ctx, delegation, "expired", now)
		swept++
	}

	return swept, nil
}

func (s *DelegationService) holdsRoleDirectly(ctx context.Context, principalID, roleID string) (bool, error) {
	grants, err := s.roles.ListByPrincipal(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("list roles for principal %s: %w", principalID, err)
	}
	for _, grant := range grants {
		if grant.RoleID == roleID && grant.Source == domain.GrantSourceDirect {
			return true, nil
		}
	}
	return false, nil
}

func (s *DelegationService) publishChange(ctx context.Context, delegation domain.RoleDelegation, action string, at time.Time) {
	if s.audit == nil {
		return
	}

	event := domain.DelegationChangedEvent{
		EventID:      uuid.NewString(),
		DelegationID: delegation.ID,
		DelegatorID:  delegation.DelegatorID,
		DelegateeID:  delegation.DelegateeID,
		RoleID:       delegation.RoleID,
		Action:       action,
		ExpiresAt:    delegation.ExpiresAt,
		OccurredAt:   at,
	}

	if err := s.audit.PublishDelegationChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish delegation change event", zap.Error(err))
	}
}
