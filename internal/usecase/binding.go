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

// ErrEmptyConditions indicates a binding with no condition category, which
// would silently behave like an unconditional grant.
var ErrEmptyConditions = errors.New("binding requires at least one condition")

// BindingService manages conditional permission bindings. Evaluation happens
// in the decision engine; this service owns validation and persistence.
type BindingService struct {
	bindings    port.BindingRepository
	roles       port.RoleRepository
	permissions port.PermissionRepository
	audit       port.AuditPublisher
	logger      *zap.Logger
}

// NewBindingService constructs a BindingService.
func NewBindingService(
	bindings port.BindingRepository,
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *BindingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BindingService{
		bindings:    bindings,
		roles:       roles,
		permissions: permissions,
		audit:       audit,
		logger:      logger,
	}
}

// CreateBindingInput captures the payload for creating a binding.
type CreateBindingInput struct {
	RoleID       string
	PermissionID string
	Conditions   domain.BindingConditions
}

// CreateBinding validates and persists a conditional permission binding.
func (s *BindingService) CreateBinding(ctx context.Context, actorID string, input CreateBindingInput) (*domain.ConditionalPermissionBinding, error) {
	roleID := strings.TrimSpace(input.RoleID)
	permissionID := strings.TrimSpace(input.PermissionID)
	if roleID == "" || permissionID == "" {
		return nil, fmt.Errorf("role id and permission id are required")
	}
	if input.Conditions.Empty() {
		return nil, ErrEmptyConditions
	}

	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
		}
		return nil, fmt.Errorf("lookup role %s: %w", roleID, err)
	}
	if _, err := s.permissions.GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("permission %s: %w", permissionID, ErrPermissionNotFound)
		}
		return nil, fmt.Errorf("lookup permission %s: %w", permissionID, err)
	}

	binding := domain.ConditionalPermissionBinding{
		ID:           uuid.NewString(),
		RoleID:       roleID,
		PermissionID: permissionID,
		Conditions:   input.Conditions,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.bindings.Create(ctx, binding); err != nil {
		return nil, fmt.Errorf("create binding: %w", err)
	}

	s.publishMutation(ctx, actorID, "binding.created", binding.ID, map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
	})

	return &binding, nil
}

// DeactivateBinding removes a binding from decision evaluation.
func (s *BindingService) DeactivateBinding(ctx context.Context, actorID, bindingID string) error {
	bindingID = strings.TrimSpace(bindingID)
	if bindingID == "" {
		return fmt.Errorf("binding id is required")
	}

	binding, err := s.bindings.GetByID(ctx, bindingID)
	if err != nil {
		return fmt.Errorf("get binding: %w", err)
	}

	if err := s.bindings.Deactivate(ctx, bindingID); err != nil {
		return fmt.Errorf("deactivate binding: %w", err)
	}

	s.publishMutation(ctx, actorID, "binding.deactivated", bindingID, map[string]any{
		"role_id":       binding.RoleID,
		"permission_id": binding.PermissionID,
	})

	return nil
}

func (s *BindingService) publishMutation(ctx context.Context, actorID, operation, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.PolicyMutationEvent{
		EventID:    uuid.NewString(),
		Operation:  operation,
		ActorID:    actorID,
		TargetType: "permission_binding",
		TargetID:   targetID,
		Result:     "ok",
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := s.audit.PublishPolicyMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish policy mutation event", zap.Error(err))
	}
}
