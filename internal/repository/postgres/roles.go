package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// RoleRepository implements role persistence and principal role grants.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert("policy.roles").
		Columns("id", "name", "description").
		Values(role.ID, role.Name, role.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getByField(ctx, "id", id)
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getByField(ctx, "name", name)
}

func (r *RoleRepository) getByField(ctx context.Context, field, value string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description").
		From("policy.roles").
		Where(squirrel.Eq{field: value}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		role        domain.Role
		description sql.NullString
	)

	if err := row.Scan(&role.ID, &role.Name, &description); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	if description.Valid {
		role.Description = &description.String
	}

	return &role, nil
}

// List retrieves all roles sorted by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description").
		From("policy.roles").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var (
			role        domain.Role
			description sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &description); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if description.Valid {
			role.Description = &description.String
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// AssignPermissions links the provided permissions to the role and returns the number of rows inserted.
func (r *RoleRepository) AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	query := r.builder.Insert("policy.role_permissions").
		Columns("role_id", "permission_id")

	for _, permissionID := range permissionIDs {
		query = query.Values(roleID, permissionID)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build assign role permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("assign role permissions: %w", err)
	}

	return int(res.RowsAffected()), nil
}

// RevokePermissions removes the provided permissions from the role and returns the number of rows deleted.
func (r *RoleRepository) RevokePermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	stmt, args, err := r.builder.Delete("policy.role_permissions").
		Where(squirrel.Eq{"role_id": roleID}).
		Where(squirrel.Eq{"permission_id": permissionIDs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke role permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke role permissions: %w", err)
	}

	return int(res.RowsAffected()), nil
}

// ListDirectPermissions returns the permissions granted directly to the role.
func (r *RoleRepository) ListDirectPermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select(
		"p.id",
		"p.resource_type",
		"p.operation",
		"p.resource_id",
		"p.description",
	).
		From("policy.permissions p").
		Join("policy.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.resource_type ASC", "p.operation ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build direct permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query direct permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		var (
			permission  domain.Permission
			resourceID  sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(
			&permission.ID,
			&permission.ResourceType,
			&permission.Operation,
			&resourceID,
			&description,
		); err != nil {
			return nil, fmt.Errorf("scan direct permission: %w", err)
		}
		if resourceID.Valid {
			permission.ResourceID = &resourceID.String
		}
		if description.Valid {
			permission.Description = &description.String
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate direct permissions: %w", err)
	}

	return permissions, nil
}

// AssignToPrincipal records a role grant with its provenance.
func (r *RoleRepository) AssignToPrincipal(ctx context.Context, grant domain.PrincipalRole) error {
	stmt, args, err := r.builder.Insert("policy.principal_roles").
		Columns("principal_id", "role_id", "assigned_at", "source", "delegation_id", "rule_id").
		Values(grant.PrincipalID, grant.RoleID, grant.AssignedAt, string(grant.Source), grant.DelegationID, grant.RuleID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role to principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("assign role to principal: %w", err)
	}

	return nil
}

// RemoveFromPrincipal deletes the principal's grant of the role.
func (r *RoleRepository) RemoveFromPrincipal(ctx context.Context, principalID, roleID string) error {
	stmt, args, err := r.builder.Delete("policy.principal_roles").
		Where(squirrel.Eq{"principal_id": principalID}).
		Where(squirrel.Eq{"role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove role from principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove role from principal: %w", err)
	}

	return nil
}

// RemoveDelegatedGrant deletes the grant conferred by the delegation. Grants
// of the same role from other sources are untouched.
func (r *RoleRepository) RemoveDelegatedGrant(ctx context.Context, delegationID string) error {
	stmt, args, err := r.builder.Delete("policy.principal_roles").
		Where(squirrel.Eq{"source": string(domain.GrantSourceDelegation)}).
		Where(squirrel.Eq{"delegation_id": delegationID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove delegated grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove delegated grant: %w", err)
	}

	return nil
}

// ListByPrincipal returns the principal's role grants with provenance.
func (r *RoleRepository) ListByPrincipal(ctx context.Context, principalID string) ([]domain.PrincipalRole, error) {
	stmt, args, err := r.builder.Select("principal_id", "role_id", "assigned_at", "source", "delegation_id", "rule_id").
		From("policy.principal_roles").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("assigned_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by principal sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles by principal: %w", err)
	}
	defer rows.Close()

	grants := make([]domain.PrincipalRole, 0)
	for rows.Next() {
		var (
			grant        domain.PrincipalRole
			source       string
			delegationID sql.NullString
			ruleID       sql.NullString
		)
		if err := rows.Scan(
			&grant.PrincipalID,
			&grant.RoleID,
			&grant.AssignedAt,
			&source,
			&delegationID,
			&ruleID,
		); err != nil {
			return nil, fmt.Errorf("scan role grant: %w", err)
		}
		grant.Source = domain.RoleGrantSource(source)
		if delegationID.Valid {
			grant.DelegationID = &delegationID.String
		}
		if ruleID.Valid {
			grant.RuleID = &ruleID.String
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role grants: %w", err)
	}

	return grants, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
