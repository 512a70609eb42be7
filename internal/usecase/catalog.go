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

// ErrRoleExists indicates a role with the same name already exists.
var ErrRoleExists = errors.New("role already exists")

// CacheInvalidator drops cached permission resolutions affected by a role's
// direct-grant changes.
type CacheInvalidator interface {
	InvalidateRole(ctx context.Context, roleID string)
}

// CatalogService manages the role and permission catalog and direct role
// grants to principals.
type CatalogService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	identity    port.IdentityResolver
	invalidator CacheInvalidator
	audit       port.AuditPublisher
	logger      *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	identity port.IdentityResolver,
	invalidator CacheInvalidator,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		roles:       roles,
		permissions: permissions,
		identity:    identity,
		invalidator: invalidator,
		audit:       audit,
		logger:      logger,
	}
}

// CreateRole registers a new role.
func (s *CatalogService) CreateRole(ctx context.Context, actorID, name string, description *string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	if _, err := s.roles.GetByName(ctx, name); err == nil {
		return nil, ErrRoleExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role by name: %w", err)
	}

	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.publishMutation(ctx, actorID, "role.created", "role", role.ID, map[string]any{"name": name})
	return &role, nil
}

// GetRole returns one role by id.
func (s *CatalogService) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, strings.TrimSpace(roleID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// ListRoles returns the full role catalog.
func (s *CatalogService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// CreatePermission registers a new permission. ResourceID scopes the
// permission to one resource instance; nil covers the whole resource type.
func (s *CatalogService) CreatePermission(ctx context.Context, actorID, resourceType, operation string, resourceID, description *string) (*domain.Permission, error) {
	resourceType = strings.TrimSpace(resourceType)
	operation = strings.TrimSpace(operation)
	if resourceType == "" || operation == "" {
		return nil, fmt.Errorf("resource type and operation are required")
	}

	permission := domain.Permission{
		ID:           uuid.NewString(),
		ResourceType: resourceType,
		Operation:    operation,
		ResourceID:   resourceID,
		Description:  description,
	}
	if err := s.permissions.Create(ctx, permission); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}

	s.publishMutation(ctx, actorID, "permission.created", "permission", permission.ID, map[string]any{
		"name": permission.Name(),
	})
	return &permission, nil
}

// ListPermissions returns the full permission catalog.
func (s *CatalogService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	permissions, err := s.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// AssignPermissions grants permissions directly to a role. Cached
// resolutions for the role and its descendants are invalidated.
func (s *CatalogService) AssignPermissions(ctx context.Context, actorID, roleID string, permissionIDs []string) (int, error) {
	roleID = strings.TrimSpace(roleID)
	ids := uniqueStrings(permissionIDs)
	if roleID == "" || len(ids) == 0 {
		return 0, fmt.Errorf("role id and permission ids are required")
	}

	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
		}
		return 0, fmt.Errorf("lookup role %s: %w", roleID, err)
	}

	known, err := s.permissions.ListByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("lookup permissions: %w", err)
	}
	if len(known) != len(ids) {
		return 0, fmt.Errorf("grant references unknown permission: %w", ErrPermissionNotFound)
	}

	assigned, err := s.roles.AssignPermissions(ctx, roleID, ids)
	if err != nil {
		return 0, fmt.Errorf("assign permissions: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}
	s.publishMutation(ctx, actorID, "role.permissions_assigned", "role", roleID, map[string]any{
		"permission_ids": ids,
		"assigned":       assigned,
	})

	return assigned, nil
}

// RevokePermissions removes direct grants from a role. Cached resolutions
// for the role and its descendants are invalidated.
func (s *CatalogService) RevokePermissions(ctx context.Context, actorID, roleID string, permissionIDs []string) (int, error) {
	roleID = strings.TrimSpace(roleID)
	ids := uniqueStrings(permissionIDs)
	if roleID == "" || len(ids) == 0 {
		return 0, fmt.Errorf("role id and permission ids are required")
	}

	revoked, err := s.roles.RevokePermissions(ctx, roleID, ids)
	if err != nil {
		return 0, fmt.Errorf("revoke permissions: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}
	s.publishMutation(ctx, actorID, "role.permissions_revoked", "role", roleID, map[string]any{
		"permission_ids": ids,
		"revoked":        revoked,
	})

	return revoked, nil
}

// AssignRole grants a role directly to a principal.
func (s *CatalogService) AssignRole(ctx context.Context, actorID, principalID, roleID string) error {
	principalID = strings.TrimSpace(principalID)
	roleID = strings.TrimSpace(roleID)
	if principalID == "" || roleID == "" {
		return fmt.Errorf("principal id and role id are required")
	}

	if _, err := s.identity.ResolvePrincipal(ctx, principalID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("principal %s: %w", principalID, repository.ErrNotFound)
		}
		return fmt.Errorf("resolve principal %s: %w", principalID, err)
	}
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
		}
		return fmt.Errorf("lookup role %s: %w", roleID, err)
	}

	grant := domain.PrincipalRole{
		PrincipalID: principalID,
		RoleID:      roleID,
		AssignedAt:  time.Now().UTC(),
		Source:      domain.GrantSourceDirect,
	}
	if err := s.roles.AssignToPrincipal(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return fmt.Errorf("assign role to principal: %w", err)
	}

	s.publishMutation(ctx, actorID, "principal.role_assigned", "principal", principalID, map[string]any{
		"role_id": roleID,
	})
	return nil
}

// RemoveRole revokes a principal's grant of a role, regardless of source.
func (s *CatalogService) RemoveRole(ctx context.Context, actorID, principalID, roleID string) error {
	principalID = strings.TrimSpace(principalID)
	roleID = strings.TrimSpace(roleID)
	if principalID == "" || roleID == "" {
		return fmt.Errorf("principal id and role id are required")
	}

	if err := s.roles.RemoveFromPrincipal(ctx, principalID, roleID); err != nil {
		return fmt.Errorf("remove role from principal: %w", err)
	}

	s.publishMutation(ctx, actorID, "principal.role_removed", "principal", principalID, map[string]any{
		"role_id": roleID,
	})
	return nil
}

func (s *CatalogService) publishMutation(ctx context.Context, actorID, operation, targetType, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.PolicyMutationEvent{
		EventID:    uuid.NewString(),
		Operation:  operation,
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
		Result:     "ok",
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := s.audit.PublishPolicyMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish policy mutation event", zap.Error(err))
	}
}
