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

// ErrInvalidOverride indicates an unrecognized override type.
var ErrInvalidOverride = errors.New("invalid override configuration")

// OverrideService applies and manages permission overrides. A deny override
// whose conditions hold strictly dominates any grant for the same
// (role, permission) pair.
type OverrideService struct {
	overrides   port.OverrideRepository
	roles       port.RoleRepository
	permissions port.PermissionRepository
	audit       port.AuditPublisher
	logger      *zap.Logger
}

// NewOverrideService constructs an OverrideService.
func NewOverrideService(
	overrides port.OverrideRepository,
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *OverrideService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{
		overrides:   overrides,
		roles:       roles,
		permissions: permissions,
		audit:       audit,
		logger:      logger,
	}
}

// ApplyOverrides folds the active overrides for one (role, permission) pair
// into the base grant. It returns the post-override grant and, when an
// override fired, the reason string the decision carries. Conditional
// overrides only apply when their conditions hold for the access context.
func (s *OverrideService) ApplyOverrides(ctx context.Context, roleID, permissionID string, baseGrant bool, actx domain.AccessContext) (bool, string, error) {
	overrides, err := s.overrides.ListActive(ctx, roleID, permissionID)
	if err != nil {
		return false, "", fmt.Errorf("list overrides for role %s permission %s: %w", roleID, permissionID, err)
	}

	applies := func(o domain.PermissionOverride) bool {
		if o.Conditions == nil {
			return true
		}
		ok, _ := EvaluateConditions(*o.Conditions, actx)
		return ok
	}

	for _, override := range overrides {
		if override.OverrideType == domain.OverrideDeny && applies(override) {
			return false, ReasonDeniedByOverride, nil
		}
	}

	for _, override := range overrides {
		if override.OverrideType == domain.OverrideAllow && applies(override) {
			return true, ReasonAllowedByOverride, nil
		}
	}

	return baseGrant, "", nil
}

// CreateOverrideInput captures the payload for creating an override.
type CreateOverrideInput struct {
	RoleID       string
	PermissionID string
	OverrideType domain.OverrideType
	Conditions   *domain.BindingConditions
}

// CreateOverride validates and persists a permission override.
func (s *OverrideService) CreateOverride(ctx context.Context, actorID string, input CreateOverrideInput) (*domain.PermissionOverride, error) {
	roleID := strings.TrimSpace(input.RoleID)
	permissionID := strings.TrimSpace(input.PermissionID)
	if roleID == "" || permissionID == "" {
		return nil, fmt.Errorf("role id and permission id are required")
	}
	if !input.OverrideType.Valid() {
		return nil, fmt.Errorf("%w: unknown override type %q", ErrInvalidOverride, input.OverrideType)
	}

	if err := s.checkReferences(ctx, roleID, permissionID); err != nil {
		return nil, err
	}

	override := domain.PermissionOverride{
		ID:           uuid.NewString(),
		RoleID:       roleID,
		PermissionID: permissionID,
		OverrideType: input.OverrideType,
		Conditions:   input.Conditions,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.overrides.Create(ctx, override); err != nil {
		return nil, fmt.Errorf("create override: %w", err)
	}

	s.publishMutation(ctx, actorID, "override.created", override.ID, map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
		"override_type": string(input.OverrideType),
	})

	return &override, nil
}

// DeactivateOverride removes an override from decision evaluation.
func (s *OverrideService) DeactivateOverride(ctx context.Context, actorID, overrideID string) error {
	overrideID = strings.TrimSpace(overrideID)
	if overrideID == "" {
		return fmt.Errorf("override id is required")
	}

	override, err := s.overrides.GetByID(ctx, overrideID)
	if err != nil {
		return fmt.Errorf("get override: %w", err)
	}

	if err := s.overrides.Deactivate(ctx, overrideID); err != nil {
		return fmt.Errorf("deactivate override: %w", err)
	}

	s.publishMutation(ctx, actorID, "override.deactivated", overrideID, map[string]any{
		"role_id":       override.RoleID,
		"permission_id": override.PermissionID,
	})

	return nil
}

func (s *OverrideService) checkReferences(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
		}
		return fmt.Errorf("lookup role %s: %w", roleID, err)
	}
	if _, err := s.permissions.GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("permission %s: %w", permissionID, ErrPermissionNotFound)
		}
		return fmt.Errorf("lookup permission %s: %w", permissionID, err)
	}
	return nil
}

func (s *OverrideService) publishMutation(ctx context.Context, actorID, operation, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.PolicyMutationEvent{
		EventID:    uuid.NewString(),
		Operation:  operation,
		ActorID:    actorID,
		TargetType: "permission_override",
		TargetID:   targetID,
		Result:     "ok",
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := s.audit.PublishPolicyMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish policy mutation event", zap.Error(err))
	}
}
