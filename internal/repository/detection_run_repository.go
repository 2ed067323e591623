package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

const runColumns = `id, scope_type, scope_ids, trigger, status, processed, created, updated, error_count, errors, started_at, finished_at, duration_ms`

// DetectionRunRepository persists the detection run log.
type DetectionRunRepository struct {
	db *sqlx.DB
}

// NewDetectionRunRepository constructs the repository.
func NewDetectionRunRepository(db *sqlx.DB) *DetectionRunRepository {
	return &DetectionRunRepository{db: db}
}

// Create inserts a run in running state.
func (r *DetectionRunRepository) Create(ctx context.Context, run *models.DetectionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	const query = `INSERT INTO warning_executions (id, scope_type, scope_ids, trigger, status, processed, created, updated, error_count, errors, started_at)
VALUES (:id, :scope_type, :scope_ids, :trigger, :status, :processed, :created, :updated, :error_count, :errors, :started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create detection run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (r *DetectionRunRepository) Finish(ctx context.Context, run *models.DetectionRun) error {
	const query = `UPDATE warning_executions SET status = :status, processed = :processed, created = :created, updated = :updated,
error_count = :error_count, errors = :errors, finished_at = :finished_at, duration_ms = :duration_ms WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("finish detection run: %w", err)
	}
	return expectAffected(res)
}

// List returns runs newest first with the total count.
func (r *DetectionRunRepository) List(ctx context.Context, filter models.DetectionRunFilter) ([]models.DetectionRun, int, error) {
	conds := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Trigger != "" {
		args = append(args, filter.Trigger)
		conds = append(conds, fmt.Sprintf("trigger = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM warning_executions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count detection runs: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	query := fmt.Sprintf("SELECT %s FROM warning_executions%s ORDER BY started_at DESC LIMIT %d OFFSET %d", runColumns, where, size, (page-1)*size)
	var runs []models.DetectionRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list detection runs: %w", err)
	}
	return runs, total, nil
}
