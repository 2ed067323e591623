package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

const ruleColumns = `id, name, description, conditions, severity, is_active, is_system, created_by, created_at, updated_at`

// RuleRepository persists warning rules.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository constructs the repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// List returns rules matching the filter ordered by name.
func (r *RuleRepository) List(ctx context.Context, filter models.RuleFilter) ([]models.WarningRule, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + ruleColumns + " FROM warning_rules WHERE 1=1")
	args := []interface{}{}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		sb.WriteString(fmt.Sprintf(" AND is_active = $%d", len(args)))
	}
	if filter.IsSystem != nil {
		args = append(args, *filter.IsSystem)
		sb.WriteString(fmt.Sprintf(" AND is_system = $%d", len(args)))
	}
	if len(filter.Severities) > 0 {
		holders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			args = append(args, string(sev))
			holders[i] = fmt.Sprintf("$%d", len(args))
		}
		sb.WriteString(" AND severity IN (" + strings.Join(holders, ",") + ")")
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		sb.WriteString(fmt.Sprintf(" AND created_by = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		sb.WriteString(fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args)))
	}
	sb.WriteString(" ORDER BY name ASC, id ASC")

	var rules []models.WarningRule
	if err := r.db.SelectContext(ctx, &rules, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("list warning rules: %w", err)
	}
	return rules, nil
}

// ListActive returns the rules evaluated by detection runs.
func (r *RuleRepository) ListActive(ctx context.Context) ([]models.WarningRule, error) {
	active := true
	return r.List(ctx, models.RuleFilter{IsActive: &active})
}

// GetByID fetches a rule by id.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.WarningRule, error) {
	query := "SELECT " + ruleColumns + " FROM warning_rules WHERE id = $1"
	var rule models.WarningRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindByName fetches a rule by its unique name.
func (r *RuleRepository) FindByName(ctx context.Context, name string) (*models.WarningRule, error) {
	query := "SELECT " + ruleColumns + " FROM warning_rules WHERE name = $1"
	var rule models.WarningRule
	if err := r.db.GetContext(ctx, &rule, query, name); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create inserts a new rule.
func (r *RuleRepository) Create(ctx context.Context, rule *models.WarningRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	const query = `INSERT INTO warning_rules (id, name, description, conditions, severity, is_active, is_system, created_by, created_at, updated_at)
VALUES (:id, :name, :description, :conditions, :severity, :is_active, :is_system, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create warning rule: %w", mapConstraintError(err))
	}
	return nil
}

// Update overwrites the editable fields of a rule.
func (r *RuleRepository) Update(ctx context.Context, rule *models.WarningRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE warning_rules SET name = :name, description = :description, conditions = :conditions,
severity = :severity, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, rule)
	if err != nil {
		return fmt.Errorf("update warning rule: %w", mapConstraintError(err))
	}
	return expectAffected(res)
}

// SetActive toggles whether a rule participates in detection.
func (r *RuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE warning_rules SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set warning rule active: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a non-system rule.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM warning_rules WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete warning rule: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
