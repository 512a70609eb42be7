package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

func newAssignmentFixture() (*AssignmentService, *ruleRepoStub, *roleRepoStub, *identityStub, *auditStub) {
	rules := &ruleRepoStub{}
	roles := newRoleRepoStub()
	identity := newIdentityStub()
	audit := &auditStub{}
	svc := NewAssignmentService(rules, roles, identity, audit, zap.NewNop())
	return svc, rules, roles, identity, audit
}

func TestOnEventAssignsMatchingRuleIdempotently(t *testing.T) {
	svc, rules, roles, identity, audit := newAssignmentFixture()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	identity.principals["alice"] = domain.Principal{
		ID:        "alice",
		CreatedAt: cutoff.Add(30 * 24 * time.Hour),
	}
	roles.roles["beta-tester"] = domain.Role{ID: "beta-tester", Name: "beta-tester"}
	rules.rules = []domain.RoleAssignmentRule{{
		ID: "rule-1", Name: "beta cohort", TriggerType: "login",
		TargetRoleID: "beta-tester",
		Conditions:   domain.RuleConditions{CreatedAfter: &cutoff},
		Active:       true,
	}}

	assigned, err := svc.OnEvent(context.Background(), "login", "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assigned) != 1 || assigned[0] != "beta-tester" {
		t.Fatalf("assigned = %v, want [beta-tester]", assigned)
	}

	grant := roles.grants[0]
	if grant.Source != domain.GrantSourceRule || grant.RuleID == nil || *grant.RuleID != "rule-1" {
		t.Fatalf("grant lacks rule provenance: %+v", grant)
	}
	if len(audit.autoAssigns) != 1 {
		t.Fatalf("published %d auto-assignment events, want 1", len(audit.autoAssigns))
	}

	// Same event again: no duplicate grant, no new event.
	assigned, err = svc.OnEvent(context.Background(), "login", "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assigned) != 0 {
		t.Fatalf("replay assigned %v, want none", assigned)
	}
	if len(roles.grants) != 1 {
		t.Fatalf("replay produced %d grants, want 1", len(roles.grants))
	}
	if len(audit.autoAssigns) != 1 {
		t.Fatalf("replay produced %d auto-assignment events, want 1", len(audit.autoAssigns))
	}
}

func TestOnEventSkipsUnsatisfiedConditions(t *testing.T) {
	svc, rules, roles, identity, _ := newAssignmentFixture()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	identity.principals["old-timer"] = domain.Principal{
		ID:        "old-timer",
		CreatedAt: cutoff.Add(-time.Hour),
	}
	roles.roles["beta-tester"] = domain.Role{ID: "beta-tester", Name: "beta-tester"}
	rules.rules = []domain.RoleAssignmentRule{{
		ID: "rule-1", Name: "beta cohort", TriggerType: "login",
		TargetRoleID: "beta-tester",
		Conditions:   domain.RuleConditions{CreatedAfter: &cutoff},
		Active:       true,
	}}

	assigned, err := svc.OnEvent(context.Background(), "login", "old-timer", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assigned) != 0 || len(roles.grants) != 0 {
		t.Fatalf("rule fired for unsatisfied conditions: assigned=%v grants=%d", assigned, len(roles.grants))
	}
}

func TestOnEventEvaluatesAttributeAndRolePredicates(t *testing.T) {
	svc, rules, roles, identity, _ := newAssignmentFixture()

	identity.principals["alice"] = domain.Principal{
		ID:         "alice",
		CreatedAt:  time.Now().Add(-time.Hour),
		Attributes: map[string]string{"plan": "free", "region": "eu"},
	}
	roles.roles["power-user"] = domain.Role{ID: "power-user", Name: "power-user"}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "alice", RoleID: "verified", Source: domain.GrantSourceDirect,
	})
	rules.rules = []domain.RoleAssignmentRule{{
		ID: "rule-1", Name: "eu premium", TriggerType: "plan_changed",
		TargetRoleID: "power-user",
		Conditions: domain.RuleConditions{
			HasRole:    "verified",
			Attributes: map[string]string{"plan": "premium", "region": "eu"},
		},
		Active: true,
	}}

	// Stored attributes say plan=free; the event carries the upgrade.
	assigned, err := svc.OnEvent(context.Background(), "plan_changed", "alice", map[string]string{"plan": "premium"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assigned) != 1 || assigned[0] != "power-user" {
		t.Fatalf("assigned = %v, want [power-user]", assigned)
	}
}

func TestOnEventIgnoresInactiveRules(t *testing.T) {
	svc, rules, roles, identity, _ := newAssignmentFixture()

	identity.principals["alice"] = domain.Principal{ID: "alice", CreatedAt: time.Now()}
	roles.roles["beta-tester"] = domain.Role{ID: "beta-tester", Name: "beta-tester"}
	rules.rules = []domain.RoleAssignmentRule{{
		ID: "rule-1", Name: "beta cohort", TriggerType: "login",
		TargetRoleID: "beta-tester", Active: false,
	}}

	assigned, err := svc.OnEvent(context.Background(), "login", "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assigned) != 0 {
		t.Fatalf("inactive rule assigned %v", assigned)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _, roles, _, audit := newAssignmentFixture()
	roles.roles["beta-tester"] = domain.Role{ID: "beta-tester", Name: "beta-tester"}

	_, err := svc.CreateRule(context.Background(), "admin-1", CreateRuleInput{
		Name: "broken", TriggerType: "login", TargetRoleID: "missing",
	})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("error = %v, want ErrRoleNotFound", err)
	}

	after := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	before := after.Add(-time.Hour)
	_, err = svc.CreateRule(context.Background(), "admin-1", CreateRuleInput{
		Name: "broken", TriggerType: "login", TargetRoleID: "beta-tester",
		Conditions: domain.RuleConditions{CreatedAfter: &after, CreatedBefore: &before},
	})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("error = %v, want ErrInvalidRule", err)
	}

	rule, err := svc.CreateRule(context.Background(), "admin-1", CreateRuleInput{
		Name: "beta cohort", TriggerType: "login", TargetRoleID: "beta-tester",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rule.Active {
		t.Fatal("new rule should be active")
	}
	if len(audit.mutations) != 1 {
		t.Fatalf("published %d mutation events, want 1", len(audit.mutations))
	}
}

func TestDeactivateRuleKeepsExistingGrants(t *testing.T) {
	svc, rules, roles, identity, _ := newAssignmentFixture()

	identity.principals["alice"] = domain.Principal{ID: "alice", CreatedAt: time.Now()}
	roles.roles["beta-tester"] = domain.Role{ID: "beta-tester", Name: "beta-tester"}
	rules.rules = []domain.RoleAssignmentRule{{
		ID: "rule-1", Name: "beta cohort", TriggerType: "login",
		TargetRoleID: "beta-tester", Active: true,
	}}

	if _, err := svc.OnEvent(context.Background(), "login", "alice", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeactivateRule(context.Background(), "admin-1", "rule-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(roles.grants) != 1 {
		t.Fatalf("existing grant removed by rule deactivation: %d grants", len(roles.grants))
	}
	if rules.rules[0].Active {
		t.Fatal("rule still active after deactivation")
	}
}
