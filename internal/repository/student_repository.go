package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

const enrollmentStatusActive = "ACTIVE"

const studentRefSelect = `SELECT DISTINCT ON (s.id) s.id, s.full_name, e.class_id, c.name AS class_name
        FROM students s
        LEFT JOIN enrollments e ON e.student_id = s.id AND e.status = $1
        LEFT JOIN classes c ON c.id = e.class_id`

// StudentRepository resolves detection scopes to concrete students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ResolveScope lists the active students covered by the scope ordered by id.
// Student and class scopes without ids resolve to nothing.
func (r *StudentRepository) ResolveScope(ctx context.Context, scope models.TargetScope) ([]models.StudentRef, error) {
	args := []interface{}{enrollmentStatusActive}
	query := studentRefSelect + " WHERE s.active = TRUE"
	switch scope.Type {
	case models.ScopeAll:
	case models.ScopeStudent, models.ScopeClass:
		if len(scope.IDs) == 0 {
			return nil, nil
		}
		column := "s.id"
		if scope.Type == models.ScopeClass {
			column = "e.class_id"
		}
		query += fmt.Sprintf(" AND %s IN (%s)", column, placeholders(2, len(scope.IDs)))
		for _, id := range scope.IDs {
			args = append(args, id)
		}
	default:
		return nil, fmt.Errorf("unsupported scope type %q", scope.Type)
	}
	query += " ORDER BY s.id ASC, e.joined_at DESC NULLS LAST"

	var students []models.StudentRef
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("resolve student scope: %w", err)
	}
	return students, nil
}

// FindByID fetches a student with the current class.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentRef, error) {
	query := studentRefSelect + " WHERE s.id = $2 ORDER BY s.id ASC, e.joined_at DESC NULLS LAST"
	var ref models.StudentRef
	if err := r.db.GetContext(ctx, &ref, query, enrollmentStatusActive, id); err != nil {
		return nil, err
	}
	return &ref, nil
}
