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

// PrincipalRepository resolves principals from the local replica the
// identity layer maintains. Attributes are persisted as JSONB.
type PrincipalRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a PostgreSQL-backed principal resolver.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	repo := &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// ResolvePrincipal returns the principal record the engine evaluates against.
func (r *PrincipalRepository) ResolvePrincipal(ctx context.Context, principalID string) (*domain.Principal, error) {
	stmt, args, err := r.builder.Select("id", "created_at", "attributes").
		From("policy.principals").
		Where(squirrel.Eq{"id": principalID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		principal  domain.Principal
		attributes []byte
	)
	if err := row.Scan(&principal.ID, &principal.CreatedAt, &attributes); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &principal.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal principal attributes: %w", err)
		}
	}

	return &principal, nil
}

var _ port.IdentityResolver = (*PrincipalRepository)(nil)
