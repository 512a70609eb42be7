package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

var (
	// ErrHierarchyCycle indicates the hierarchy graph contains, or an edge
	// would introduce, a cycle. This is a configuration integrity failure.
	ErrHierarchyCycle = errors.New("role hierarchy cycle")
	// ErrInvalidInheritance indicates an unrecognized inheritance type or a
	// partial edge without an inclusion list.
	ErrInvalidInheritance = errors.New("invalid inheritance configuration")
	// ErrRoleNotFound is returned when a referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is returned when a referenced permission is not
	// in the catalog.
	ErrPermissionNotFound = errors.New("permission not found")
)

// CacheMetrics records hierarchy cache effectiveness.
type CacheMetrics interface {
	ObserveCacheHit()
	ObserveCacheMiss()
}

// HierarchyService resolves inheritance-aware permission sets and manages
// hierarchy edges. Resolved sets are cached per role in the injected cache;
// edge mutations invalidate only the affected descendant closure.
type HierarchyService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	hierarchy   port.HierarchyRepository
	cache       port.HierarchyCache
	audit       port.AuditPublisher
	metrics     CacheMetrics
	logger      *zap.Logger

	// reportedCycles ensures a cycle detected at resolution time is surfaced
	// once per role, not on every decision that touches it.
	reportedCycles sync.Map
}

// NewHierarchyService constructs a HierarchyService.
func NewHierarchyService(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	hierarchy port.HierarchyRepository,
	cache port.HierarchyCache,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *HierarchyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyService{
		roles:       roles,
		permissions: permissions,
		hierarchy:   hierarchy,
		cache:       cache,
		audit:       audit,
		logger:      logger,
	}
}

// WithCacheMetrics wires cache hit/miss observation into resolution.
func (s *HierarchyService) WithCacheMetrics(metrics CacheMetrics) *HierarchyService {
	s.metrics = metrics
	return s
}

// ResolveInheritedPermissions returns the role's effective permission set:
// its direct permissions plus everything conferred by active incoming
// hierarchy edges, honoring full/partial/none inheritance. Results are
// served from the cache when present.
func (s *HierarchyService) ResolveInheritedPermissions(ctx context.Context, roleID string) ([]domain.EffectivePermission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("role id is required")
	}

	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, roleID); err == nil && ok {
			if s.metrics != nil {
				s.metrics.ObserveCacheHit()
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.ObserveCacheMiss()
		}
	}

	resolved, err := s.resolve(ctx, roleID, make(map[string]bool))
	if err != nil {
		if errors.Is(err, ErrHierarchyCycle) {
			if _, reported := s.reportedCycles.LoadOrStore(roleID, struct{}{}); !reported {
				s.logger.Error("role hierarchy cycle detected",
					zap.String("role_id", roleID),
					zap.Error(err),
				)
			}
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, roleID, resolved); err != nil {
			s.logger.Warn("failed to cache resolved permissions",
				zap.String("role_id", roleID),
				zap.Error(err),
			)
		}
	}

	return resolved, nil
}

func (s *HierarchyService) resolve(ctx context.Context, roleID string, visiting map[string]bool) ([]domain.EffectivePermission, error) {
	if visiting[roleID] {
		return nil, fmt.Errorf("%w: role %s revisited during resolution", ErrHierarchyCycle, roleID)
	}
	visiting[roleID] = true
	defer delete(visiting, roleID)

	direct, err := s.roles.ListDirectPermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list direct permissions for role %s: %w", roleID, err)
	}

	effective := make(map[string]domain.EffectivePermission, len(direct))
	for _, permission := range direct {
		effective[permission.ID] = domain.EffectivePermission{Permission: permission}
	}

	edges, err := s.hierarchy.ListActiveByChild(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list hierarchy edges for role %s: %w", roleID, err)
	}

	for _, edge := range edges {
		if edge.InheritanceType == domain.InheritanceNone {
			continue
		}

		parentSet, err := s.resolve(ctx, edge.ParentRoleID, visiting)
		if err != nil {
			return nil, err
		}

		var included map[string]struct{}
		if edge.InheritanceType == domain.InheritancePartial {
			included = make(map[string]struct{}, len(edge.InheritedPermissionIDs))
			for _, id := range edge.InheritedPermissionIDs {
				included[id] = struct{}{}
			}
		}

		for _, entry := range parentSet {
			if included != nil {
				if _, ok := included[entry.Permission.ID]; !ok {
					continue
				}
			}
			if _, exists := effective[entry.Permission.ID]; exists {
				// Direct grants and nearer ancestors win; provenance stays
				// with the first source encountered.
				continue
			}
			source := entry.InheritedFrom
			if source == "" {
				source = edge.ParentRoleID
			}
			effective[entry.Permission.ID] = domain.EffectivePermission{
				Permission:    entry.Permission,
				InheritedFrom: source,
			}
		}
	}

	resolved := make([]domain.EffectivePermission, 0, len(effective))
	for _, entry := range effective {
		resolved = append(resolved, entry)
	}

	return resolved, nil
}

// CreateEdgeInput captures the payload for creating a hierarchy edge.
type CreateEdgeInput struct {
	ParentRoleID           string
	ChildRoleID            string
	InheritanceType        domain.InheritanceType
	InheritedPermissionIDs []string
}

// CreateEdge adds a parent -> child hierarchy edge. Cycles are rejected
// eagerly: the edge is refused if the parent already inherits, directly or
// transitively, from the child.
func (s *HierarchyService) CreateEdge(ctx context.Context, actorID string, input CreateEdgeInput) (*domain.RoleHierarchyEdge, error) {
	parentID := strings.TrimSpace(input.ParentRoleID)
	childID := strings.TrimSpace(input.ChildRoleID)
	if parentID == "" || childID == "" {
		return nil, fmt.Errorf("parent and child role ids are required")
	}
	if parentID == childID {
		return nil, fmt.Errorf("%w: role %s cannot inherit from itself", ErrHierarchyCycle, childID)
	}

	if !input.InheritanceType.Valid() {
		return nil, fmt.Errorf("%w: unknown inheritance type %q", ErrInvalidInheritance, input.InheritanceType)
	}
	if input.InheritanceType == domain.InheritancePartial && len(input.InheritedPermissionIDs) == 0 {
		return nil, fmt.Errorf("%w: partial inheritance requires an inclusion list", ErrInvalidInheritance)
	}

	for _, roleID := range []string{parentID, childID} {
		if _, err := s.roles.GetByID(ctx, roleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
			}
			return nil, fmt.Errorf("lookup role %s: %w", roleID, err)
		}
	}

	if len(input.InheritedPermissionIDs) > 0 {
		known, err := s.permissions.ListByIDs(ctx, input.InheritedPermissionIDs)
		if err != nil {
			return nil, fmt.Errorf("lookup inherited permissions: %w", err)
		}
		if len(known) != len(uniqueStrings(input.InheritedPermissionIDs)) {
			return nil, fmt.Errorf("inclusion list references unknown permission: %w", ErrPermissionNotFound)
		}
	}

	cycles, err := s.wouldCreateCycle(ctx, parentID, childID)
	if err != nil {
		return nil, fmt.Errorf("check hierarchy for cycles: %w", err)
	}
	if cycles {
		return nil, fmt.Errorf("%w: %s already inherits from %s", ErrHierarchyCycle, parentID, childID)
	}

	edge := domain.RoleHierarchyEdge{
		ID:                     uuid.NewString(),
		ParentRoleID:           parentID,
		ChildRoleID:            childID,
		InheritanceType:        input.InheritanceType,
		InheritedPermissionIDs: uniqueStrings(input.InheritedPermissionIDs),
		Active:                 true,
		CreatedAt:              time.Now().UTC(),
	}

	if err := s.hierarchy.Create(ctx, edge); err != nil {
		return nil, fmt.Errorf("create hierarchy edge: %w", err)
	}

	s.invalidateDescendants(ctx, childID)
	s.publishMutation(ctx, actorID, "hierarchy_edge.created", edge.ID, map[string]any{
		"parent_role_id":   parentID,
		"child_role_id":    childID,
		"inheritance_type": string(input.InheritanceType),
	})

	return &edge, nil
}

// DeactivateEdge removes an edge from resolution without deleting its record.
func (s *HierarchyService) DeactivateEdge(ctx context.Context, actorID, edgeID string) error {
	edgeID = strings.TrimSpace(edgeID)
	if edgeID == "" {
		return fmt.Errorf("edge id is required")
	}

	edge, err := s.hierarchy.GetByID(ctx, edgeID)
	if err != nil {
		return fmt.Errorf("get hierarchy edge: %w", err)
	}

	if err := s.hierarchy.Deactivate(ctx, edgeID); err != nil {
		return fmt.Errorf("deactivate hierarchy edge: %w", err)
	}

	s.invalidateDescendants(ctx, edge.ChildRoleID)
	s.publishMutation(ctx, actorID, "hierarchy_edge.deactivated", edgeID, map[string]any{
		"parent_role_id": edge.ParentRoleID,
		"child_role_id":  edge.ChildRoleID,
	})

	return nil
}

// InvalidateRole drops cached permission sets for the role and its
// descendant closure. Callers use it after changing a role's direct grants.
func (s *HierarchyService) InvalidateRole(ctx context.Context, roleID string) {
	s.invalidateDescendants(ctx, roleID)
}

// wouldCreateCycle reports whether the child is already an ancestor of the
// parent, which adding parent -> child would close into a cycle.
func (s *HierarchyService) wouldCreateCycle(ctx context.Context, parentID, childID string) (bool, error) {
	queue := []string{parentID}
	seen := map[string]bool{parentID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		edges, err := s.hierarchy.ListActiveByChild(ctx, current)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			if edge.ParentRoleID == childID {
				return true, nil
			}
			if !seen[edge.ParentRoleID] {
				seen[edge.ParentRoleID] = true
				queue = append(queue, edge.ParentRoleID)
			}
		}
	}

	return false, nil
}

// invalidateDescendants drops cached permission sets for the role and every
// role that inherits from it, leaving unrelated cache entries untouched.
func (s *HierarchyService) invalidateDescendants(ctx context.Context, roleID string) {
	if s.cache == nil {
		return
	}

	affected := []string{roleID}
	seen := map[string]bool{roleID: true}
	queue := []string{roleID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		edges, err := s.hierarchy.ListActiveByParent(ctx, current)
		if err != nil {
			s.logger.Warn("failed to walk hierarchy for invalidation",
				zap.String("role_id", current),
				zap.Error(err),
			)
			continue
		}
		for _, edge := range edges {
			if !seen[edge.ChildRoleID] {
				seen[edge.ChildRoleID] = true
				affected = append(affected, edge.ChildRoleID)
				queue = append(queue, edge.ChildRoleID)
			}
		}
	}

	if err := s.cache.Invalidate(ctx, affected...); err != nil {
		s.logger.Warn("failed to invalidate hierarchy cache",
			zap.Strings("role_ids", affected),
			zap.Error(err),
		)
	}
}

func (s *HierarchyService) publishMutation(ctx context.Context, actorID, operation, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.PolicyMutationEvent{
		EventID:    uuid.NewString(),
		Operation:  operation,
		ActorID:    actorID,
		TargetType: "role_hierarchy_edge",
		TargetID:   targetID,
		Result:     "ok",
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := s.audit.PublishPolicyMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish policy mutation event", zap.Error(err))
	}
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return unique
}
