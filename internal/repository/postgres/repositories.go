package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Roles       *RoleRepository
	Permissions *PermissionRepository
	Hierarchy   *HierarchyRepository
	Bindings    *BindingRepository
	Overrides   *OverrideRepository
	Delegations *DelegationRepository
	Rules       *AssignmentRuleRepository
	Principals  *PrincipalRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
		Hierarchy:   NewHierarchyRepository(pool),
		Bindings:    NewBindingRepository(pool),
		Overrides:   NewOverrideRepository(pool),
		Delegations: NewDelegationRepository(pool),
		Rules:       NewAssignmentRuleRepository(pool),
		Principals:  NewPrincipalRepository(pool),
	}
}
