package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// PermissionRepository implements the permission catalog.
type PermissionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a PostgreSQL-backed permission repository.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	repo := &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new permission.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert("policy.permissions").
		Columns("id", "resource_type", "operation", "resource_id", "description").
		Values(permission.ID, permission.ResourceType, permission.Operation, permission.ResourceID, permission.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// GetByID retrieves a permission by its ID.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	stmt, args, err := r.selectPermissions().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	permission, err := scanPermission(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}

	return permission, nil
}

// ListByIDs retrieves the permissions whose ids appear in the list.
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	stmt, args, err := r.selectPermissions().
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permissions by ids sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

// List retrieves the whole permission catalog.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	stmt, args, err := r.selectPermissions().
		OrderBy("resource_type ASC", "operation ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args)
}

func (r *PermissionRepository) selectPermissions() squirrel.SelectBuilder {
	return r.builder.Select("id", "resource_type", "operation", "resource_id", "description").
		From("policy.permissions")
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, stmt string, args []any) ([]domain.Permission, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, *permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

func scanPermission(row pgx.Row) (*domain.Permission, error) {
	var (
		permission  domain.Permission
		resourceID  sql.NullString
		description sql.NullString
	)
	if err := row.Scan(
		&permission.ID,
		&permission.ResourceType,
		&permission.Operation,
		&resourceID,
		&description,
	); err != nil {
		return nil, err
	}
	if resourceID.Valid {
		permission.ResourceID = &resourceID.String
	}
	if description.Valid {
		permission.Description = &description.String
	}
	return &permission, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
