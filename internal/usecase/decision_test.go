package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

type metricsStub struct {
	observed []string
}

func (m *metricsStub) ObserveDecision(granted bool, reason string, _ time.Duration) {
	m.observed = append(m.observed, reason)
}

type decisionFixture struct {
	svc         *DecisionService
	identity    *identityStub
	roles       *roleRepoStub
	delegations *delegationRepoStub
	bindings    *bindingRepoStub
	overrides   *overrideRepoStub
	hierarchy   *hierarchyRepoStub
	audit       *auditStub
	metrics     *metricsStub
}

func newDecisionFixture() *decisionFixture {
	identity := newIdentityStub()
	roles := newRoleRepoStub()
	delegations := newDelegationRepoStub()
	bindings := &bindingRepoStub{}
	overrides := &overrideRepoStub{}
	hierarchy := &hierarchyRepoStub{}
	permissions := newPermissionRepoStub()
	audit := &auditStub{}
	metrics := &metricsStub{}

	resolver := NewHierarchyService(roles, permissions, hierarchy, newCacheStub(), audit, zap.NewNop())
	overrideSvc := NewOverrideService(overrides, roles, permissions, audit, zap.NewNop())
	svc := NewDecisionService(identity, roles, delegations, bindings, resolver, overrideSvc, audit, metrics, zap.NewNop())

	return &decisionFixture{
		svc:         svc,
		identity:    identity,
		roles:       roles,
		delegations: delegations,
		bindings:    bindings,
		overrides:   overrides,
		hierarchy:   hierarchy,
		audit:       audit,
		metrics:     metrics,
	}
}

func (f *decisionFixture) addPrincipal(id string) {
	f.identity.principals[id] = domain.Principal{ID: id, CreatedAt: time.Now().Add(-24 * time.Hour)}
}

func (f *decisionFixture) grantDirect(principalID, roleID string) {
	f.roles.grants = append(f.roles.grants, domain.PrincipalRole{
		PrincipalID: principalID, RoleID: roleID, Source: domain.GrantSourceDirect, AssignedAt: time.Now(),
	})
}

func baseContext() domain.AccessContext {
	return domain.AccessContext{
		Now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		OriginIP: "10.0.0.1",
	}
}

func TestDecideGrantsThroughInheritance(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("alice")
	f.grantDirect("alice", "senior-editor")
	f.roles.rolePerms["editor"] = []domain.Permission{permFixture("p-update", "article", "update")}
	f.hierarchy.edges = []domain.RoleHierarchyEdge{{
		ID: "e1", ParentRoleID: "editor", ChildRoleID: "senior-editor",
		InheritanceType: domain.InheritanceFull, Active: true,
	}}

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "alice",
		ResourceType: "article",
		Operation:    "update",
		Context:      baseContext(),
	})

	if !result.Granted {
		t.Fatalf("denied: %+v", result)
	}
	if result.Reason != ReasonGrantedInheritance {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonGrantedInheritance)
	}
	if result.MatchedRoleID != "senior-editor" {
		t.Fatalf("matched role = %q, want senior-editor", result.MatchedRoleID)
	}
}

func TestDecideDenyOverrideBeatsInheritedGrant(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("bob")
	f.grantDirect("bob", "moderator")
	f.roles.rolePerms["admin"] = []domain.Permission{permFixture("p-del", "article", "delete")}
	f.hierarchy.edges = []domain.RoleHierarchyEdge{{
		ID: "e1", ParentRoleID: "admin", ChildRoleID: "moderator",
		InheritanceType: domain.InheritanceFull, Active: true,
	}}
	f.overrides.overrides = []domain.PermissionOverride{{
		ID: "o1", RoleID: "moderator", PermissionID: "p-del",
		OverrideType: domain.OverrideDeny, Active: true,
	}}

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "bob",
		ResourceType: "article",
		Operation:    "delete",
		Context:      baseContext(),
	})

	if result.Granted {
		t.Fatalf("granted despite deny override: %+v", result)
	}
	if result.Reason != ReasonDeniedByOverride {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonDeniedByOverride)
	}
}

func TestDecideDeniesOutsideBusinessHours(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("carol")
	f.grantDirect("carol", "contractor")
	f.roles.rolePerms["contractor"] = []domain.Permission{permFixture("p-deploy", "pipeline", "deploy")}
	f.bindings.bindings = []domain.ConditionalPermissionBinding{{
		ID: "b1", RoleID: "contractor", PermissionID: "p-deploy", Active: true,
		Conditions: domain.BindingConditions{
			Time: &domain.TimeCondition{HoursOfDay: []int{9, 10, 11, 12, 13, 14, 15, 16, 17}},
		},
	}}

	evening := baseContext()
	evening.Now = time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "carol",
		ResourceType: "pipeline",
		Operation:    "deploy",
		Context:      evening,
	})

	if result.Granted {
		t.Fatalf("granted outside allowed hours: %+v", result)
	}
	if result.Reason != ReasonConditionsNotMet {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonConditionsNotMet)
	}
	if result.FailedCondition != ConditionCategoryTime {
		t.Fatalf("failed condition = %q, want %q", result.FailedCondition, ConditionCategoryTime)
	}

	morning := baseContext()
	result = f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "carol",
		ResourceType: "pipeline",
		Operation:    "deploy",
		Context:      morning,
	})
	if !result.Granted {
		t.Fatalf("denied within allowed hours: %+v", result)
	}
}

func TestDecideSkipsRevokedDelegation(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("dave")
	delegationID := "d1"
	f.roles.grants = append(f.roles.grants, domain.PrincipalRole{
		PrincipalID: "dave", RoleID: "auditor",
		Source: domain.GrantSourceDelegation, DelegationID: &delegationID,
	})
	f.roles.rolePerms["auditor"] = []domain.Permission{permFixture("p-audit", "ledger", "read")}
	f.delegations.delegations[delegationID] = domain.RoleDelegation{
		ID: delegationID, DelegatorID: "erin", DelegateeID: "dave", RoleID: "auditor",
		ExpiresAt: time.Now().Add(time.Hour), Active: true,
	}

	input := DecideInput{
		PrincipalID:  "dave",
		ResourceType: "ledger",
		Operation:    "read",
		Context:      baseContext(),
	}

	if result := f.svc.Decide(context.Background(), input); !result.Granted {
		t.Fatalf("active delegation denied: %+v", result)
	}

	revokedAt := time.Now()
	delegation := f.delegations.delegations[delegationID]
	delegation.RevokedAt = &revokedAt
	f.delegations.delegations[delegationID] = delegation

	if result := f.svc.Decide(context.Background(), input); result.Granted {
		t.Fatalf("revoked delegation still grants: %+v", result)
	}
}

func TestDecideSkipsLapsedDelegationLazily(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("frank")
	delegationID := "d2"
	f.roles.grants = append(f.roles.grants, domain.PrincipalRole{
		PrincipalID: "frank", RoleID: "auditor",
		Source: domain.GrantSourceDelegation, DelegationID: &delegationID,
	})
	f.roles.rolePerms["auditor"] = []domain.Permission{permFixture("p-audit", "ledger", "read")}
	// Still marked active in the store; expiry has passed and no sweep ran.
	f.delegations.delegations[delegationID] = domain.RoleDelegation{
		ID: delegationID, DelegatorID: "erin", DelegateeID: "frank", RoleID: "auditor",
		ExpiresAt: baseContext().Now.Add(-time.Minute), Active: true,
	}

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "frank",
		ResourceType: "ledger",
		Operation:    "read",
		Context:      baseContext(),
	})
	if result.Granted {
		t.Fatalf("lapsed delegation still grants: %+v", result)
	}
	if result.Reason != ReasonNoMatch {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonNoMatch)
	}
}

func TestDecideUnknownPrincipal(t *testing.T) {
	f := newDecisionFixture()

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "ghost",
		ResourceType: "article",
		Operation:    "read",
		Context:      baseContext(),
	})
	if result.Granted || result.Reason != ReasonPrincipalNotFound {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDecideStoreFailureDegradesToDeny(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("alice")
	f.roles.listGrantsErr = errors.New("connection refused")

	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "alice",
		ResourceType: "article",
		Operation:    "read",
		Context:      baseContext(),
	})
	if result.Granted || result.Reason != ReasonStoreUnavailable {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDecideResourceScopedPermission(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("alice")
	f.grantDirect("alice", "owner")
	docID := "doc-42"
	f.roles.rolePerms["owner"] = []domain.Permission{{
		ID: "p-scoped", ResourceType: "document", Operation: "delete", ResourceID: &docID,
	}}

	input := DecideInput{
		PrincipalID:  "alice",
		ResourceType: "document",
		ResourceID:   "doc-42",
		Operation:    "delete",
		Context:      baseContext(),
	}
	if result := f.svc.Decide(context.Background(), input); !result.Granted {
		t.Fatalf("scoped permission denied on its own resource: %+v", result)
	}

	input.ResourceID = "doc-99"
	if result := f.svc.Decide(context.Background(), input); result.Granted {
		t.Fatalf("scoped permission granted on another resource: %+v", result)
	}
}

func TestDecideEmitsAuditAndMetrics(t *testing.T) {
	f := newDecisionFixture()

	f.addPrincipal("alice")
	result := f.svc.Decide(context.Background(), DecideInput{
		PrincipalID:  "alice",
		ResourceType: "article",
		Operation:    "read",
		Context:      baseContext(),
	})
	if result.Granted {
		t.Fatalf("unexpected grant: %+v", result)
	}

	if len(f.audit.decisions) != 1 {
		t.Fatalf("published %d decision events, want 1", len(f.audit.decisions))
	}
	event := f.audit.decisions[0]
	if event.PrincipalID != "alice" || event.Reason != ReasonNoMatch || event.Granted {
		t.Fatalf("unexpected decision event: %+v", event)
	}
	if len(f.metrics.observed) != 1 || f.metrics.observed[0] != ReasonNoMatch {
		t.Fatalf("unexpected metrics observations: %v", f.metrics.observed)
	}
}
