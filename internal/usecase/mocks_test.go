package usecase

import (
	"context"
	"time"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// In-memory stubs for the engine's ports. Error fields force failures for
// degraded-path tests.

type roleRepoStub struct {
	roles     map[string]domain.Role
	rolePerms map[string][]domain.Permission
	grants    []domain.PrincipalRole

	listGrantsErr error
	assignErr     error
}

func newRoleRepoStub() *roleRepoStub {
	return &roleRepoStub{
		roles:     make(map[string]domain.Role),
		rolePerms: make(map[string][]domain.Permission),
	}
}

func (s *roleRepoStub) Create(_ context.Context, role domain.Role) error {
	s.roles[role.ID] = role
	return nil
}

func (s *roleRepoStub) GetByID(_ context.Context, id string) (*domain.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (s *roleRepoStub) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			r := role
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *roleRepoStub) List(_ context.Context) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

func (s *roleRepoStub) AssignPermissions(_ context.Context, roleID string, permissionIDs []string) (int, error) {
	return len(permissionIDs), nil
}

func (s *roleRepoStub) RevokePermissions(_ context.Context, roleID string, permissionIDs []string) (int, error) {
	return len(permissionIDs), nil
}

func (s *roleRepoStub) ListDirectPermissions(_ context.Context, roleID string) ([]domain.Permission, error) {
	return s.rolePerms[roleID], nil
}

func (s *roleRepoStub) AssignToPrincipal(_ context.Context, grant domain.PrincipalRole) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	for _, existing := range s.grants {
		if existing.PrincipalID == grant.PrincipalID && existing.RoleID == grant.RoleID {
			return repository.ErrConflict
		}
	}
	s.grants = append(s.grants, grant)
	return nil
}

func (s *roleRepoStub) RemoveFromPrincipal(_ context.Context, principalID, roleID string) error {
	kept := s.grants[:0]
	for _, grant := range s.grants {
		if grant.PrincipalID == principalID && grant.RoleID == roleID {
			continue
		}
		kept = append(kept, grant)
	}
	s.grants = kept
	return nil
}

func (s *roleRepoStub) RemoveDelegatedGrant(_ context.Context, delegationID string) error {
	kept := s.grants[:0]
	for _, grant := range s.grants {
		if grant.Source == domain.GrantSourceDelegation && grant.DelegationID != nil && *grant.DelegationID == delegationID {
			continue
		}
		kept = append(kept, grant)
	}
	s.grants = kept
	return nil
}

func (s *roleRepoStub) ListByPrincipal(_ context.Context, principalID string) ([]domain.PrincipalRole, error) {
	if s.listGrantsErr != nil {
		return nil, s.listGrantsErr
	}
	var grants []domain.PrincipalRole
	for _, grant := range s.grants {
		if grant.PrincipalID == principalID {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

type permissionRepoStub struct {
	permissions map[string]domain.Permission
}

func newPermissionRepoStub() *permissionRepoStub {
	return &permissionRepoStub{permissions: make(map[string]domain.Permission)}
}

func (s *permissionRepoStub) Create(_ context.Context, permission domain.Permission) error {
	s.permissions[permission.ID] = permission
	return nil
}

func (s *permissionRepoStub) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	permission, ok := s.permissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &permission, nil
}

func (s *permissionRepoStub) ListByIDs(_ context.Context, ids []string) ([]domain.Permission, error) {
	var found []domain.Permission
	for _, id := range ids {
		if permission, ok := s.permissions[id]; ok {
			found = append(found, permission)
		}
	}
	return found, nil
}

func (s *permissionRepoStub) List(_ context.Context) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0, len(s.permissions))
	for _, permission := range s.permissions {
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

type hierarchyRepoStub struct {
	edges []domain.RoleHierarchyEdge
}

func (s *hierarchyRepoStub) Create(_ context.Context, edge domain.RoleHierarchyEdge) error {
	s.edges = append(s.edges, edge)
	return nil
}

func (s *hierarchyRepoStub) GetByID(_ context.Context, id string) (*domain.RoleHierarchyEdge, error) {
	for _, edge := range s.edges {
		if edge.ID == id {
			e := edge
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *hierarchyRepoStub) Deactivate(_ context.Context, id string) error {
	for i := range s.edges {
		if s.edges[i].ID == id {
			s.edges[i].Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *hierarchyRepoStub) ListActiveByChild(_ context.Context, childRoleID string) ([]domain.RoleHierarchyEdge, error) {
	var matched []domain.RoleHierarchyEdge
	for _, edge := range s.edges {
		if edge.Active && edge.ChildRoleID == childRoleID {
			matched = append(matched, edge)
		}
	}
	return matched, nil
}

func (s *hierarchyRepoStub) ListActiveByParent(_ context.Context, parentRoleID string) ([]domain.RoleHierarchyEdge, error) {
	var matched []domain.RoleHierarchyEdge
	for _, edge := range s.edges {
		if edge.Active && edge.ParentRoleID == parentRoleID {
			matched = append(matched, edge)
		}
	}
	return matched, nil
}

type bindingRepoStub struct {
	bindings []domain.ConditionalPermissionBinding
}

func (s *bindingRepoStub) Create(_ context.Context, binding domain.ConditionalPermissionBinding) error {
	s.bindings = append(s.bindings, binding)
	return nil
}

func (s *bindingRepoStub) GetByID(_ context.Context, id string) (*domain.ConditionalPermissionBinding, error) {
	for _, binding := range s.bindings {
		if binding.ID == id {
			b := binding
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *bindingRepoStub) Deactivate(_ context.Context, id string) error {
	for i := range s.bindings {
		if s.bindings[i].ID == id {
			s.bindings[i].Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *bindingRepoStub) ListActive(_ context.Context, roleID, permissionID string) ([]domain.ConditionalPermissionBinding, error) {
	var matched []domain.ConditionalPermissionBinding
	for _, binding := range s.bindings {
		if binding.Active && binding.RoleID == roleID && binding.PermissionID == permissionID {
			matched = append(matched, binding)
		}
	}
	return matched, nil
}

type overrideRepoStub struct {
	overrides []domain.PermissionOverride
}

func (s *overrideRepoStub) Create(_ context.Context, override domain.PermissionOverride) error {
	s.overrides = append(s.overrides, override)
	return nil
}

func (s *overrideRepoStub) GetByID(_ context.Context, id string) (*domain.PermissionOverride, error) {
	for _, override := range s.overrides {
		if override.ID == id {
			o := override
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *overrideRepoStub) Deactivate(_ context.Context, id string) error {
	for i := range s.overrides {
		if s.overrides[i].ID == id {
			s.overrides[i].Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *overrideRepoStub) ListActive(_ context.Context, roleID, permissionID string) ([]domain.PermissionOverride, error) {
	var matched []domain.PermissionOverride
	for _, override := range s.overrides {
		if override.Active && override.RoleID == roleID && override.PermissionID == permissionID {
			matched = append(matched, override)
		}
	}
	return matched, nil
}

type delegationRepoStub struct {
	delegations map[string]domain.RoleDelegation
}

func newDelegationRepoStub() *delegationRepoStub {
	return &delegationRepoStub{delegations: make(map[string]domain.RoleDelegation)}
}

func (s *delegationRepoStub) Create(_ context.Context, delegation domain.RoleDelegation) error {
	s.delegations[delegation.ID] = delegation
	return nil
}

func (s *delegationRepoStub) GetByID(_ context.Context, id string) (*domain.RoleDelegation, error) {
	delegation, ok := s.delegations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &delegation, nil
}

func (s *delegationRepoStub) MarkRevoked(_ context.Context, id string, revokedAt time.Time) error {
	delegation, ok := s.delegations[id]
	if !ok {
		return repository.ErrNotFound
	}
	delegation.Active = false
	delegation.RevokedAt = &revokedAt
	s.delegations[id] = delegation
	return nil
}

func (s *delegationRepoStub) MarkExpired(_ context.Context, id string) error {
	delegation, ok := s.delegations[id]
	if !ok {
		return repository.ErrNotFound
	}
	delegation.Active = false
	s.delegations[id] = delegation
	return nil
}

func (s *delegationRepoStub) ListDue(_ context.Context, cutoff time.Time) ([]domain.RoleDelegation, error) {
	var due []domain.RoleDelegation
	for _, delegation := range s.delegations {
		if delegation.Active && delegation.RevokedAt == nil && !delegation.ExpiresAt.After(cutoff) {
			due = append(due, delegation)
		}
	}
	return due, nil
}

type ruleRepoStub struct {
	rules []domain.RoleAssignmentRule
}

func (s *ruleRepoStub) Create(_ context.Context, rule domain.RoleAssignmentRule) error {
	s.rules = append(s.rules, rule)
	return nil
}

func (s *ruleRepoStub) GetByID(_ context.Context, id string) (*domain.RoleAssignmentRule, error) {
	for _, rule := range s.rules {
		if rule.ID == id {
			r := rule
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ruleRepoStub) Deactivate(_ context.Context, id string) error {
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *ruleRepoStub) ListActiveByTrigger(_ context.Context, triggerType string) ([]domain.RoleAssignmentRule, error) {
	var matched []domain.RoleAssignmentRule
	for _, rule := range s.rules {
		if rule.Active && rule.TriggerType == triggerType {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

type identityStub struct {
	principals map[string]domain.Principal
}

func newIdentityStub() *identityStub {
	return &identityStub{principals: make(map[string]domain.Principal)}
}

func (s *identityStub) ResolvePrincipal(_ context.Context, principalID string) (*domain.Principal, error) {
	principal, ok := s.principals[principalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &principal, nil
}

type auditStub struct {
	decisions   []domain.DecisionEvent
	mutations   []domain.PolicyMutationEvent
	delegations []domain.DelegationChangedEvent
	autoAssigns []domain.RoleAutoAssignedEvent
}

func (s *auditStub) PublishDecision(_ context.Context, event domain.DecisionEvent) error {
	s.decisions = append(s.decisions, event)
	return nil
}

func (s *auditStub) PublishPolicyMutation(_ context.Context, event domain.PolicyMutationEvent) error {
	s.mutations = append(s.mutations, event)
	return nil
}

func (s *auditStub) PublishDelegationChanged(_ context.Context, event domain.DelegationChangedEvent) error {
	s.delegations = append(s.delegations, event)
	return nil
}

func (s *auditStub) PublishRoleAutoAssigned(_ context.Context, event domain.RoleAutoAssignedEvent) error {
	s.autoAssigns = append(s.autoAssigns, event)
	return nil
}

type cacheStub struct {
	entries       map[string][]domain.EffectivePermission
	hits          int
	invalidations []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]domain.EffectivePermission)}
}

func (s *cacheStub) Get(_ context.Context, roleID string) ([]domain.EffectivePermission, bool, error) {
	entry, ok := s.entries[roleID]
	if ok {
		s.hits++
	}
	return entry, ok, nil
}

func (s *cacheStub) Set(_ context.Context, roleID string, permissions []domain.EffectivePermission) error {
	s.entries[roleID] = permissions
	return nil
}

func (s *cacheStub) Invalidate(_ context.Context, roleIDs ...string) error {
	for _, roleID := range roleIDs {
		delete(s.entries, roleID)
		s.invalidations = append(s.invalidations, roleID)
	}
	return nil
}
