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

// OverrideRepository stores permission overrides. The optional condition
// document is persisted as nullable JSONB.
type OverrideRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOverrideRepository constructs a PostgreSQL-backed override repository.
func NewOverrideRepository(exec pgExecutor) *OverrideRepository {
	repo := &OverrideRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *OverrideRepository) WithTx(tx pgx.Tx) *OverrideRepository {
	if tx == nil {
		return r
	}
	return &OverrideRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new override.
func (r *OverrideRepository) Create(ctx context.Context, override domain.PermissionOverride) error {
	var conditions []byte
	if override.Conditions != nil {
		encoded, err := json.Marshal(override.Conditions)
		if err != nil {
			return fmt.Errorf("marshal override conditions: %w", err)
		}
		conditions = encoded
	}

	stmt, args, err := r.builder.Insert("policy.permission_overrides").
		Columns("id", "role_id", "permission_id", "override_type", "conditions", "active", "created_at").
		Values(override.ID, override.RoleID, override.PermissionID, string(override.OverrideType), conditions, override.Active, override.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert override sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert override: %w", err)
	}

	return nil
}

// GetByID retrieves an override by its ID.
func (r *OverrideRepository) GetByID(ctx context.Context, id string) (*domain.PermissionOverride, error) {
	stmt, args, err := r.selectOverrides().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select override sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	override, err := scanOverride(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan override: %w", err)
	}

	return override, nil
}

// Deactivate marks the override inactive.
func (r *OverrideRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("policy.permission_overrides").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate override sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate override: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActive returns the active overrides for one (role, permission) pair.
func (r *OverrideRepository) ListActive(ctx context.Context, roleID, permissionID string) ([]domain.PermissionOverride, error) {
	stmt, args, err := r.selectOverrides().
		Where(squirrel.Eq{"role_id": roleID, "permission_id": permissionID, "active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active overrides sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make([]domain.PermissionOverride, 0)
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, *override)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}

	return overrides, nil
}

func (r *OverrideRepository) selectOverrides() squirrel.SelectBuilder {
	return r.builder.Select("id", "role_id", "permission_id", "override_type", "conditions", "active", "created_at").
		From("policy.permission_overrides")
}

func scanOverride(row pgx.Row) (*domain.PermissionOverride, error) {
	var (
		override     domain.PermissionOverride
		overrideType string
		conditions   []byte
	)
	if err := row.Scan(
		&override.ID,
		&override.RoleID,
		&override.PermissionID,
		&overrideType,
		&conditions,
		&override.Active,
		&override.CreatedAt,
	); err != nil {
		return nil, err
	}
	override.OverrideType = domain.OverrideType(overrideType)
	if len(conditions) > 0 {
		var decoded domain.BindingConditions
		if err := json.Unmarshal(conditions, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal override conditions: %w", err)
		}
		override.Conditions = &decoded
	}
	return &override, nil
}

var _ port.OverrideRepository = (*OverrideRepository)(nil)
