package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

func newDelegationFixture() (*DelegationService, *delegationRepoStub, *roleRepoStub, *identityStub, *auditStub) {
	delegations := newDelegationRepoStub()
	roles := newRoleRepoStub()
	identity := newIdentityStub()
	audit := &auditStub{}
	svc := NewDelegationService(delegations, roles, identity, audit, zap.NewNop())
	return svc, delegations, roles, identity, audit
}

func TestDelegateGrantsRoleWithProvenance(t *testing.T) {
	svc, delegations, roles, identity, audit := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "erin", RoleID: "auditor", Source: domain.GrantSourceDirect,
	})

	expiresAt := time.Now().Add(48 * time.Hour)
	delegation, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", expiresAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delegation.State(time.Now()) != domain.DelegationActive {
		t.Fatalf("new delegation state = %q, want active", delegation.State(time.Now()))
	}
	if _, ok := delegations.delegations[delegation.ID]; !ok {
		t.Fatal("delegation record not persisted")
	}

	var grant *domain.PrincipalRole
	for i := range roles.grants {
		if roles.grants[i].PrincipalID == "dave" && roles.grants[i].RoleID == "auditor" {
			grant = &roles.grants[i]
		}
	}
	if grant == nil {
		t.Fatal("delegatee did not receive the role grant")
	}
	if grant.Source != domain.GrantSourceDelegation || grant.DelegationID == nil || *grant.DelegationID != delegation.ID {
		t.Fatalf("grant lacks delegation provenance: %+v", grant)
	}
	if len(audit.delegations) != 1 || audit.delegations[0].Action != "delegated" {
		t.Fatalf("unexpected delegation events: %+v", audit.delegations)
	}
}

func TestDelegateRequiresDirectRole(t *testing.T) {
	svc, delegations, roles, identity, _ := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}

	// Erin only holds the role through a delegation herself.
	otherDelegation := "d0"
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "erin", RoleID: "auditor",
		Source: domain.GrantSourceDelegation, DelegationID: &otherDelegation,
	})

	_, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrDelegatorLacksRole) {
		t.Fatalf("error = %v, want ErrDelegatorLacksRole", err)
	}
	if len(delegations.delegations) != 0 {
		t.Fatal("failed delegation left a persisted record")
	}
	for _, grant := range roles.grants {
		if grant.PrincipalID == "dave" {
			t.Fatal("failed delegation granted the role anyway")
		}
	}
}

func TestDelegateRejectsDelegateeAlreadyHoldingRole(t *testing.T) {
	svc, delegations, roles, identity, _ := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}
	roles.grants = append(roles.grants,
		domain.PrincipalRole{PrincipalID: "erin", RoleID: "auditor", Source: domain.GrantSourceDirect},
		domain.PrincipalRole{PrincipalID: "dave", RoleID: "auditor", Source: domain.GrantSourceDirect},
	)

	_, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrDelegateeAlreadyHolds) {
		t.Fatalf("error = %v, want ErrDelegateeAlreadyHolds", err)
	}
	if len(delegations.delegations) != 0 {
		t.Fatal("refused delegation left a persisted record")
	}

	held := false
	for _, grant := range roles.grants {
		if grant.PrincipalID == "dave" && grant.RoleID == "auditor" && grant.Source == domain.GrantSourceDirect {
			held = true
		}
	}
	if !held {
		t.Fatal("delegatee's own grant disappeared")
	}
}

func TestDelegateRollsBackOnGrantFailure(t *testing.T) {
	svc, delegations, roles, identity, _ := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "erin", RoleID: "auditor", Source: domain.GrantSourceDirect,
	})
	roles.assignErr = errors.New("store down")

	_, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("expected an error when the grant cannot be written")
	}
	for _, delegation := range delegations.delegations {
		if delegation.State(time.Now()) == domain.DelegationActive {
			t.Fatalf("grant failure left an active delegation: %+v", delegation)
		}
	}
}

func TestDelegateRejectsPastExpiry(t *testing.T) {
	svc, _, roles, identity, _ := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "erin", RoleID: "auditor", Source: domain.GrantSourceDirect,
	})

	_, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("error = %v, want ErrInvalidExpiry", err)
	}
}

func TestRevokeRemovesGrantAndIsTerminal(t *testing.T) {
	svc, delegations, roles, identity, audit := newDelegationFixture()

	roles.roles["auditor"] = domain.Role{ID: "auditor", Name: "auditor"}
	identity.principals["dave"] = domain.Principal{ID: "dave", CreatedAt: time.Now()}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "erin", RoleID: "auditor", Source: domain.GrantSourceDirect,
	})

	delegation, err := svc.Delegate(context.Background(), "erin", "dave", "auditor", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Revoke(context.Background(), delegation.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := delegations.delegations[delegation.ID]
	if stored.State(time.Now()) != domain.DelegationRevoked {
		t.Fatalf("state = %q, want revoked", stored.State(time.Now()))
	}
	for _, grant := range roles.grants {
		if grant.PrincipalID == "dave" && grant.RoleID == "auditor" {
			t.Fatal("delegated grant survived revocation")
		}
	}

	// No transition out of revoked.
	if err := svc.Revoke(context.Background(), delegation.ID); !errors.Is(err, ErrDelegationNotActive) {
		t.Fatalf("error = %v, want ErrDelegationNotActive", err)
	}

	var actions []string
	for _, event := range audit.delegations {
		actions = append(actions, event.Action)
	}
	if len(actions) != 2 || actions[1] != "revoked" {
		t.Fatalf("unexpected delegation event actions: %v", actions)
	}
}

func TestRevokeUnknownDelegation(t *testing.T) {
	svc, _, _, _, _ := newDelegationFixture()

	err := svc.Revoke(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for unknown delegation")
	}
}

func TestExpireDueSweepsLapsedDelegations(t *testing.T) {
	svc, delegations, roles, _, audit := newDelegationFixture()

	now := time.Now().UTC()
	delegationID := "d1"
	delegations.delegations[delegationID] = domain.RoleDelegation{
		ID: delegationID, DelegatorID: "erin", DelegateeID: "dave", RoleID: "auditor",
		ExpiresAt: now.Add(-time.Minute), Active: true,
	}
	delegations.delegations["d2"] = domain.RoleDelegation{
		ID: "d2", DelegatorID: "erin", DelegateeID: "gail", RoleID: "auditor",
		ExpiresAt: now.Add(time.Hour), Active: true,
	}
	roles.grants = append(roles.grants, domain.PrincipalRole{
		PrincipalID: "dave", RoleID: "auditor",
		Source: domain.GrantSourceDelegation, DelegationID: &delegationID,
	})

	swept, err := svc.ExpireDue(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d delegations, want 1", swept)
	}
	if delegations.delegations["d1"].Active {
		t.Fatal("lapsed delegation still active after sweep")
	}
	if !delegations.delegations["d2"].Active {
		t.Fatal("future delegation swept prematurely")
	}
	if len(roles.grants) != 0 {
		t.Fatal("expired delegated grant was not removed")
	}
	if len(audit.delegations) != 1 || audit.delegations[0].Action != "expired" {
		t.Fatalf("unexpected delegation events: %+v", audit.delegations)
	}
}

func TestExpireDuePreservesDirectGrant(t *testing.T) {
	svc, delegations, roles, _, _ := newDelegationFixture()

	now := time.Now().UTC()
	delegationID := "d1"
	delegations.delegations[delegationID] = domain.RoleDelegation{
		ID: delegationID, DelegatorID: "erin", DelegateeID: "bob", RoleID: "auditor",
		ExpiresAt: now.Add(-time.Minute), Active: true,
	}
	// Bob holds the role in his own right alongside the delegated grant.
	roles.grants = append(roles.grants,
		domain.PrincipalRole{PrincipalID: "bob", RoleID: "auditor", Source: domain.GrantSourceDirect},
		domain.PrincipalRole{PrincipalID: "bob", RoleID: "auditor", Source: domain.GrantSourceDelegation, DelegationID: &delegationID},
	)

	if _, err := svc.ExpireDue(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remaining, err := roles.ListByPrincipal(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Source != domain.GrantSourceDirect {
		t.Fatalf("sweep should leave only the direct grant, got %+v", remaining)
	}
}
