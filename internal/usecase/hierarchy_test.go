package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

func permFixture(id, resourceType, operation string) domain.Permission {
	return domain.Permission{ID: id, ResourceType: resourceType, Operation: operation}
}

func newHierarchyFixture() (*HierarchyService, *roleRepoStub, *permissionRepoStub, *hierarchyRepoStub, *cacheStub, *auditStub) {
	roles := newRoleRepoStub()
	permissions := newPermissionRepoStub()
	hierarchy := &hierarchyRepoStub{}
	cache := newCacheStub()
	audit := &auditStub{}
	svc := NewHierarchyService(roles, permissions, hierarchy, cache, audit, zap.NewNop())
	return svc, roles, permissions, hierarchy, cache, audit
}

func TestResolveInheritedPermissionsDirectOnly(t *testing.T) {
	svc, roles, _, _, _, _ := newHierarchyFixture()

	roles.roles["editor"] = domain.Role{ID: "editor", Name: "editor"}
	roles.rolePerms["editor"] = []domain.Permission{
		permFixture("p1", "article", "read"),
		permFixture("p2", "article", "update"),
	}

	resolved, err := svc.ResolveInheritedPermissions(context.Background(), "editor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d permissions, want 2", len(resolved))
	}
	for _, entry := range resolved {
		if entry.InheritedFrom != "" {
			t.Fatalf("direct permission %s marked inherited from %s", entry.Permission.ID, entry.InheritedFrom)
		}
	}
}

func TestResolveInheritedPermissionsFullInheritance(t *testing.T) {
	svc, roles, _, hierarchy, _, _ := newHierarchyFixture()

	roles.rolePerms["editor"] = []domain.Permission{permFixture("p1", "article", "update")}
	roles.rolePerms["senior-editor"] = []domain.Permission{permFixture("p2", "article", "publish")}
	hierarchy.edges = []domain.RoleHierarchyEdge{{
		ID: "e1", ParentRoleID: "editor", ChildRoleID: "senior-editor",
		InheritanceType: domain.InheritanceFull, Active: true,
	}}

	resolved, err := svc.ResolveInheritedPermissions(context.Background(), "senior-editor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d permissions, want 2", len(resolved))
	}

	byID := make(map[string]domain.EffectivePermission)
	for _, entry := range resolved {
		byID[entry.Permission.ID] = entry
	}
	if byID["p1"].InheritedFrom != "editor" {
		t.Fatalf("p1 inherited from %q, want %q", byID["p1"].InheritedFrom, "editor")
	}
	if byID["p2"].InheritedFrom != "" {
		t.Fatalf("p2 should be direct, got inherited from %q", byID["p2"].InheritedFrom)
	}
}

func TestResolveInheritedPermissionsPartialInclusionList(t *testing.T) {
	svc, roles, _, hierarchy, _, _ := newHierarchyFixture()

	roles.rolePerms["admin"] = []domain.Permission{
		permFixture("p1", "article", "read"),
		permFixture("p2", "article", "delete"),
	}
	hierarchy.edges = []domain.RoleHierarchyEdge{{
		ID: "e1", ParentRoleID: "admin", ChildRoleID: "moderator",
		InheritanceType:        domain.InheritancePartial,
		InheritedPermissionIDs: []string{"p1"},
		Active:                 true,
	}}

	resolved, err := svc.ResolveInheritedPermissions(context.Background(), "moderator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Permission.ID != "p1" {
		t.Fatalf("partial inheritance resolved %+v, want only p1", resolved)
	}
}

func TestResolveInheritedPermissionsNoneEdgeContributesNothing(t *testing.T) {
	svc, roles, _, hierarchy, _, _ := newHierarchyFixture()

	roles.rolePerms["admin"] = []domain.Permission{permFixture("p1", "article", "delete")}
	hierarchy.edges = []domain.RoleHierarchyEdge{{
		ID: "e1", ParentRoleID: "admin", ChildRoleID: "intern",
		InheritanceType: domain.InheritanceNone, Active: true,
	}}

	resolved, err := svc.ResolveInheritedPermissions(context.Background(), "intern")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("none edge contributed %d permissions, want 0", len(resolved))
	}
}

func TestResolveInheritedPermissionsDetectsCycle(t *testing.T) {
	svc, _, _, hierarchy, _, _ := newHierarchyFixture()

	hierarchy.edges = []domain.RoleHierarchyEdge{
		{ID: "e1", ParentRoleID: "b", ChildRoleID: "a", InheritanceType: domain.InheritanceFull, Active: true},
		{ID: "e2", ParentRoleID: "a", ChildRoleID: "b", InheritanceType: domain.InheritanceFull, Active: true},
	}

	if _, err := svc.ResolveInheritedPermissions(context.Background(), "a"); !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("error = %v, want ErrHierarchyCycle", err)
	}
}

func TestResolveInheritedPermissionsUsesCache(t *testing.T) {
	svc, roles, _, _, cache, _ := newHierarchyFixture()

	roles.rolePerms["editor"] = []domain.Permission{permFixture("p1", "article", "read")}

	if _, err := svc.ResolveInheritedPermissions(context.Background(), "editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cache.entries["editor"]; !ok {
		t.Fatal("resolution result was not cached")
	}

	// Change the store; the cached snapshot must still be served.
	roles.rolePerms["editor"] = nil
	resolved, err := svc.ResolveInheritedPermissions(context.Background(), "editor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 1 || cache.hits == 0 {
		t.Fatalf("expected cache hit with 1 permission, got %d permissions, %d hits", len(resolved), cache.hits)
	}
}

type cacheMetricsStub struct {
	hits   int
	misses int
}

func (s *cacheMetricsStub) ObserveCacheHit()  { s.hits++ }
func (s *cacheMetricsStub) ObserveCacheMiss() { s.misses++ }

func TestResolveInheritedPermissionsObservesCacheMetrics(t *testing.T) {
	svc, roles, _, _, _, _ := newHierarchyFixture()
	metrics := &cacheMetricsStub{}
	svc = svc.WithCacheMetrics(metrics)

	roles.rolePerms["editor"] = []domain.Permission{permFixture("p1", "article", "read")}

	if _, err := svc.ResolveInheritedPermissions(context.Background(), "editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.hits != 0 || metrics.misses != 1 {
		t.Fatalf("cold resolution recorded hits=%d misses=%d, want 0/1", metrics.hits, metrics.misses)
	}

	if _, err := svc.ResolveInheritedPermissions(context.Background(), "editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.hits != 1 || metrics.misses != 1 {
		t.Fatalf("warm resolution recorded hits=%d misses=%d, want 1/1", metrics.hits, metrics.misses)
	}
}

func TestCreateEdgeRejectsCycle(t *testing.T) {
	svc, roles, _, hierarchy, _, _ := newHierarchyFixture()

	roles.roles["a"] = domain.Role{ID: "a", Name: "a"}
	roles.roles["b"] = domain.Role{ID: "b", Name: "b"}
	roles.roles["c"] = domain.Role{ID: "c", Name: "c"}
	hierarchy.edges = []domain.RoleHierarchyEdge{
		{ID: "e1", ParentRoleID: "a", ChildRoleID: "b", InheritanceType: domain.InheritanceFull, Active: true, CreatedAt: time.Now()},
		{ID: "e2", ParentRoleID: "b", ChildRoleID: "c", InheritanceType: domain.InheritanceFull, Active: true, CreatedAt: time.Now()},
	}

	_, err := svc.CreateEdge(context.Background(), "admin-1", CreateEdgeInput{
		ParentRoleID:    "c",
		ChildRoleID:     "a",
		InheritanceType: domain.InheritanceFull,
	})
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("error = %v, want ErrHierarchyCycle", err)
	}
	if len(hierarchy.edges) != 2 {
		t.Fatalf("rejected edge was persisted, %d edges", len(hierarchy.edges))
	}
}

func TestCreateEdgeRejectsSelfLoop(t *testing.T) {
	svc, roles, _, _, _, _ := newHierarchyFixture()
	roles.roles["a"] = domain.Role{ID: "a", Name: "a"}

	_, err := svc.CreateEdge(context.Background(), "admin-1", CreateEdgeInput{
		ParentRoleID:    "a",
		ChildRoleID:     "a",
		InheritanceType: domain.InheritanceFull,
	})
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("error = %v, want ErrHierarchyCycle", err)
	}
}

func TestCreateEdgeRequiresInclusionListForPartial(t *testing.T) {
	svc, roles, _, _, _, _ := newHierarchyFixture()
	roles.roles["a"] = domain.Role{ID: "a", Name: "a"}
	roles.roles["b"] = domain.Role{ID: "b", Name: "b"}

	_, err := svc.CreateEdge(context.Background(), "admin-1", CreateEdgeInput{
		ParentRoleID:    "a",
		ChildRoleID:     "b",
		InheritanceType: domain.InheritancePartial,
	})
	if !errors.Is(err, ErrInvalidInheritance) {
		t.Fatalf("error = %v, want ErrInvalidInheritance", err)
	}
}

func TestCreateEdgeInvalidatesDescendantClosure(t *testing.T) {
	svc, roles, _, hierarchy, cache, audit := newHierarchyFixture()

	roles.roles["root"] = domain.Role{ID: "root", Name: "root"}
	roles.roles["mid"] = domain.Role{ID: "mid", Name: "mid"}
	roles.roles["leaf"] = domain.Role{ID: "leaf", Name: "leaf"}
	hierarchy.edges = []domain.RoleHierarchyEdge{
		{ID: "e1", ParentRoleID: "mid", ChildRoleID: "leaf", InheritanceType: domain.InheritanceFull, Active: true},
	}
	cache.entries["mid"] = []domain.EffectivePermission{}
	cache.entries["leaf"] = []domain.EffectivePermission{}
	cache.entries["unrelated"] = []domain.EffectivePermission{}

	if _, err := svc.CreateEdge(context.Background(), "admin-1", CreateEdgeInput{
		ParentRoleID:    "root",
		ChildRoleID:     "mid",
		InheritanceType: domain.InheritanceFull,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := cache.entries["mid"]; ok {
		t.Fatal("mid cache entry should be invalidated")
	}
	if _, ok := cache.entries["leaf"]; ok {
		t.Fatal("leaf cache entry should be invalidated")
	}
	if _, ok := cache.entries["unrelated"]; !ok {
		t.Fatal("unrelated cache entry should be untouched")
	}
	if len(audit.mutations) != 1 {
		t.Fatalf("published %d mutation events, want 1", len(audit.mutations))
	}
}

func TestDeactivateEdgeInvalidatesChild(t *testing.T) {
	svc, _, _, hierarchy, cache, _ := newHierarchyFixture()

	hierarchy.edges = []domain.RoleHierarchyEdge{
		{ID: "e1", ParentRoleID: "parent", ChildRoleID: "child", InheritanceType: domain.InheritanceFull, Active: true},
	}
	cache.entries["child"] = []domain.EffectivePermission{}

	if err := svc.DeactivateEdge(context.Background(), "admin-1", "e1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hierarchy.edges[0].Active {
		t.Fatal("edge still active after deactivation")
	}
	if _, ok := cache.entries["child"]; ok {
		t.Fatal("child cache entry should be invalidated")
	}
}
