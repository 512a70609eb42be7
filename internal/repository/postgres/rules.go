package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
	"github.com/arklim/social-platform-policy/internal/repository"
)

// AssignmentRuleRepository stores dynamic role assignment rules. Rule
// condition documents are persisted as JSONB.
type AssignmentRuleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAssignmentRuleRepository constructs a PostgreSQL-backed rule repository.
func NewAssignmentRuleRepository(exec pgExecutor) *AssignmentRuleRepository {
	repo := &AssignmentRuleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *AssignmentRuleRepository) WithTx(tx pgx.Tx) *AssignmentRuleRepository {
	if tx == nil {
		return r
	}
	return &AssignmentRuleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new assignment rule.
func (r *AssignmentRuleRepository) Create(ctx context.Context, rule domain.RoleAssignmentRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal rule conditions: %w", err)
	}

	stmt, args, err := r.builder.Insert("policy.assignment_rules").
		Columns("id", "name", "description", "trigger_type", "target_role_id", "conditions", "active", "created_at").
		Values(rule.ID, rule.Name, rule.Description, rule.TriggerType, rule.TargetRoleID, conditions, rule.Active, rule.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert rule sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	return nil
}

// GetByID retrieves a rule by its ID.
func (r *AssignmentRuleRepository) GetByID(ctx context.Context, id string) (*domain.RoleAssignmentRule, error) {
	stmt, args, err := r.selectRules().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select rule sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	rule, err := scanRule(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	return rule, nil
}

// Deactivate stops the rule from matching future events.
func (r *AssignmentRuleRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("policy.assignment_rules").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate rule sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActiveByTrigger returns the active rules registered for a trigger type.
func (r *AssignmentRuleRepository) ListActiveByTrigger(ctx context.Context, triggerType string) ([]domain.RoleAssignmentRule, error) {
	stmt, args, err := r.selectRules().
		Where(squirrel.Eq{"trigger_type": triggerType, "active": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rules by trigger sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.RoleAssignmentRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return rules, nil
}

func (r *AssignmentRuleRepository) selectRules() squirrel.SelectBuilder {
	return r.builder.Select("id", "name", "description", "trigger_type", "target_role_id", "conditions", "active", "created_at").
		From("policy.assignment_rules")
}

func scanRule(row pgx.Row) (*domain.RoleAssignmentRule, error) {
	var (
		rule        domain.RoleAssignmentRule
		description sql.NullString
		conditions  []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&description,
		&rule.TriggerType,
		&rule.TargetRoleID,
		&conditions,
		&rule.Active,
		&rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		rule.Description = &description.String
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
		}
	}
	return &rule, nil
}

var _ port.AssignmentRuleRepository = (*AssignmentRuleRepository)(nil)
