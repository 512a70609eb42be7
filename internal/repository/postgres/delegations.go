package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// DelegationRepository stores role delegations.
type DelegationRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDelegationRepository constructs a PostgreSQL-backed delegation repository.
func NewDelegationRepository(exec pgExecutor) *DelegationRepository {
	repo := &DelegationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *DelegationRepository) WithTx(tx pgx.Tx) *DelegationRepository {
	if tx == nil {
		return r
	}
	return &DelegationRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new delegation.
func (r *DelegationRepository) Create(ctx context.Context, delegation domain.RoleDelegation) error {
	stmt, args, err := r.builder.Insert("policy.role_delegations").
		Columns("id", "delegator_id", "delegatee_id", "role_id", "delegated_at", "expires_at", "active", "revoked_at").
		Values(
			delegation.ID,
			delegation.DelegatorID,
			delegation.DelegateeID,
			delegation.RoleID,
			delegation.DelegatedAt,
			delegation.ExpiresAt,
			delegation.Active,
			delegation.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert delegation sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert delegation: %w", err)
	}

	return nil
}

// GetByID retrieves a delegation by its ID.
func (r *DelegationRepository) GetByID(ctx context.Context, id string) (*domain.RoleDelegation, error) {
	stmt, args, err := r.selectDelegations().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select delegation sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	delegation, err := scanDelegation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan delegation: %w", err)
	}

	return delegation, nil
}

// MarkRevoked records the revocation instant and deactivates the delegation.
func (r *DelegationRepository) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	stmt, args, err := r.builder.Update("policy.role_delegations").
		Set("active", false).
		Set("revoked_at", revokedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke delegation sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke delegation: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkExpired deactivates a delegation whose expiry has passed.
func (r *DelegationRepository) MarkExpired(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("policy.role_delegations").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build expire delegation sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("expire delegation: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListDue returns active delegations whose expiry is at or before the cutoff.
func (r *DelegationRepository) ListDue(ctx context.Context, cutoff time.Time) ([]domain.RoleDelegation, error) {
	stmt, args, err := r.selectDelegations().
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.LtOrEq{"expires_at": cutoff}).
		OrderBy("expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due delegations sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query due delegations: %w", err)
	}
	defer rows.Close()

	delegations := make([]domain.RoleDelegation, 0)
	for rows.Next() {
		delegation, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		delegations = append(delegations, *delegation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delegations: %w", err)
	}

	return delegations, nil
}

func (r *DelegationRepository) selectDelegations() squirrel.SelectBuilder {
	return r.builder.Select("id", "delegator_id", "delegatee_id", "role_id", "delegated_at", "expires_at", "active", "revoked_at").
		From("policy.role_delegations")
}

func scanDelegation(row pgx.Row) (*domain.RoleDelegation, error) {
	var (
		delegation domain.RoleDelegation
		revokedAt  sql.NullTime
	)
	if err := row.Scan(
		&delegation.ID,
		&delegation.DelegatorID,
		&delegation.DelegateeID,
		&delegation.RoleID,
		&delegation.DelegatedAt,
		&delegation.ExpiresAt,
		&delegation.Active,
		&revokedAt,
	); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		delegation.RevokedAt = &revokedAt.Time
	}
	return &delegation, nil
}

var _ port.DelegationRepository = (*DelegationRepository)(nil)
