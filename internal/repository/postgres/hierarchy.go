package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// HierarchyRepository stores role hierarchy edges.
type HierarchyRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewHierarchyRepository constructs a PostgreSQL-backed hierarchy repository.
func NewHierarchyRepository(exec pgExecutor) *HierarchyRepository {
	repo := &HierarchyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *HierarchyRepository) WithTx(tx pgx.Tx) *HierarchyRepository {
	if tx == nil {
		return r
	}
	return &HierarchyRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new hierarchy edge.
func (r *HierarchyRepository) Create(ctx context.Context, edge domain.RoleHierarchyEdge) error {
	stmt, args, err := r.builder.Insert("policy.role_hierarchy_edges").
		Columns("id", "parent_role_id", "child_role_id", "inheritance_type", "inherited_permission_ids", "active", "created_at").
		Values(edge.ID, edge.ParentRoleID, edge.ChildRoleID, string(edge.InheritanceType), edge.InheritedPermissionIDs, edge.Active, edge.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert hierarchy edge sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert hierarchy edge: %w", err)
	}

	return nil
}

// GetByID retrieves a hierarchy edge by its ID.
func (r *HierarchyRepository) GetByID(ctx context.Context, id string) (*domain.RoleHierarchyEdge, error) {
	stmt, args, err := r.selectEdges().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select hierarchy edge sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	edge, err := scanEdge(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan hierarchy edge: %w", err)
	}

	return edge, nil
}

// Deactivate marks the edge inactive, removing it from resolution.
func (r *HierarchyRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("policy.role_hierarchy_edges").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate hierarchy edge sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate hierarchy edge: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActiveByChild returns active incoming edges where the role is the child.
func (r *HierarchyRepository) ListActiveByChild(ctx context.Context, childRoleID string) ([]domain.RoleHierarchyEdge, error) {
	stmt, args, err := r.selectEdges().
		Where(squirrel.Eq{"child_role_id": childRoleID, "active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build edges by child sql: %w", err)
	}

	return r.queryEdges(ctx, stmt, args)
}

// ListActiveByParent returns active outgoing edges where the role is the parent.
func (r *HierarchyRepository) ListActiveByParent(ctx context.Context, parentRoleID string) ([]domain.RoleHierarchyEdge, error) {
	stmt, args, err := r.selectEdges().
		Where(squirrel.Eq{"parent_role_id": parentRoleID, "active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build edges by parent sql: %w", err)
	}

	return r.queryEdges(ctx, stmt, args)
}

func (r *HierarchyRepository) selectEdges() squirrel.SelectBuilder {
	return r.builder.Select("id", "parent_role_id", "child_role_id", "inheritance_type", "inherited_permission_ids", "active", "created_at").
		From("policy.role_hierarchy_edges")
}

func (r *HierarchyRepository) queryEdges(ctx context.Context, stmt string, args []any) ([]domain.RoleHierarchyEdge, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query hierarchy edges: %w", err)
	}
	defer rows.Close()

	edges := make([]domain.RoleHierarchyEdge, 0)
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hierarchy edge: %w", err)
		}
		edges = append(edges, *edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hierarchy edges: %w", err)
	}

	return edges, nil
}

func scanEdge(row pgx.Row) (*domain.RoleHierarchyEdge, error) {
	var (
		edge            domain.RoleHierarchyEdge
		inheritanceType string
	)
	if err := row.Scan(
		&edge.ID,
		&edge.ParentRoleID,
		&edge.ChildRoleID,
		&inheritanceType,
		&edge.InheritedPermissionIDs,
		&edge.Active,
		&edge.CreatedAt,
	); err != nil {
		return nil, err
	}
	edge.InheritanceType = domain.InheritanceType(inheritanceType)
	return &edge, nil
}

var _ port.HierarchyRepository = (*HierarchyRepository)(nil)
