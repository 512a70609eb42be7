package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// BindingRepository stores conditional permission bindings. Condition
// documents are persisted as JSONB.
type BindingRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBindingRepository constructs a PostgreSQL-backed binding repository.
func NewBindingRepository(exec pgExecutor) *BindingRepository {
	repo := &BindingRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *BindingRepository) WithTx(tx pgx.Tx) *BindingRepository {
	if tx == nil {
		return r
	}
	return &BindingRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new binding.
func (r *BindingRepository) Create(ctx context.Context, binding domain.ConditionalPermissionBinding) error {
	conditions, err := json.Marshal(binding.Conditions)
	if err != nil {
		return fmt.Errorf("marshal binding conditions: %w", err)
	}

	stmt, args, err := r.builder.Insert("policy.permission_bindings").
		Columns("id", "role_id", "permission_id", "conditions", "active", "created_at").
		Values(binding.ID, binding.RoleID, binding.PermissionID, conditions, binding.Active, binding.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert binding sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}

	return nil
}

// GetByID retrieves a binding by its ID.
func (r *BindingRepository) GetByID(ctx context.Context, id string) (*domain.ConditionalPermissionBinding, error) {
	stmt, args, err := r.selectBindings().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select binding sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	binding, err := scanBinding(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan binding: %w", err)
	}

	return binding, nil
}

// Deactivate marks the binding inactive.
func (r *BindingRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("policy.permission_bindings").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate binding sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate binding: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActive returns the active bindings for one (role, permission) grant.
func (r *BindingRepository) ListActive(ctx context.Context, roleID, permissionID string) ([]domain.ConditionalPermissionBinding, error) {
	stmt, args, err := r.selectBindings().
		Where(squirrel.Eq{"role_id": roleID, "permission_id": permissionID, "active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active bindings sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	bindings := make([]domain.ConditionalPermissionBinding, 0)
	for rows.Next() {
		binding, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, *binding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}

	return bindings, nil
}

func (r *BindingRepository) selectBindings() squirrel.SelectBuilder {
	return r.builder.Select("id", "role_id", "permission_id", "conditions", "active", "created_at").
		From("policy.permission_bindings")
}

func scanBinding(row pgx.Row) (*domain.ConditionalPermissionBinding, error) {
	var (
		binding    domain.ConditionalPermissionBinding
		conditions []byte
	)
	if err := row.Scan(
		&binding.ID,
		&binding.RoleID,
		&binding.PermissionID,
		&conditions,
		&binding.Active,
		&binding.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &binding.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal binding conditions: %w", err)
		}
	}
	return &binding, nil
}

var _ port.BindingRepository = (*BindingRepository)(nil)
