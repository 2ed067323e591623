package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

// MetricSourceRepository reads the raw per-student rows metrics are computed from.
type MetricSourceRepository struct {
	db *sqlx.DB
}

// NewMetricSourceRepository constructs the repository.
func NewMetricSourceRepository(db *sqlx.DB) *MetricSourceRepository {
	return &MetricSourceRepository{db: db}
}

// ScoresBetween returns the student's grade values recorded in [from, to], oldest first.
func (r *MetricSourceRepository) ScoresBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.ScoreRecord, error) {
	const query = `SELECT g.grade_value AS score, g.created_at AS recorded_at
FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
WHERE e.student_id = $1 AND g.created_at >= $2 AND g.created_at <= $3
ORDER BY g.created_at ASC, g.id ASC`
	var scores []models.ScoreRecord
	if err := r.db.SelectContext(ctx, &scores, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return scores, nil
}

// HomeworkBetween returns the student's homework rows due in [from, to].
func (r *MetricSourceRepository) HomeworkBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.HomeworkSubmission, error) {
	const query = `SELECT status, due_date FROM homework_submissions
WHERE student_id = $1 AND due_date >= $2 AND due_date <= $3
ORDER BY due_date ASC`
	var rows []models.HomeworkSubmission
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list student homework: %w", err)
	}
	return rows, nil
}

// AttendanceBetween returns the student's daily attendance in [from, to].
func (r *MetricSourceRepository) AttendanceBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEntry, error) {
	const query = `SELECT da.status, da.date
FROM daily_attendance da
JOIN enrollments e ON e.id = da.enrollment_id
WHERE e.student_id = $1 AND da.date >= $2 AND da.date <= $3
ORDER BY da.date ASC`
	var rows []models.AttendanceEntry
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return rows, nil
}
