package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

const alertColumns = `id, student_id, student_name, class_id, class_name, rule_id, rule_name, severity, trigger_data, status, notes,
created_at, updated_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by`

// triggerJSON stores TriggerData in the JSONB trigger_data column.
type triggerJSON struct {
	models.TriggerData
}

// Value implements driver.Valuer.
func (t triggerJSON) Value() (driver.Value, error) {
	return json.Marshal(t.TriggerData)
}

// Scan implements sql.Scanner.
func (t *triggerJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.TriggerData = models.TriggerData{}
		return nil
	case []byte:
		return json.Unmarshal(v, &t.TriggerData)
	case string:
		return json.Unmarshal([]byte(v), &t.TriggerData)
	default:
		return fmt.Errorf("unsupported trigger data type %T", src)
	}
}

// alertRecordRow is the warning_records row shape: the record plus its JSONB trigger column.
type alertRecordRow struct {
	models.AlertRecord
	Trigger triggerJSON `db:"trigger_data"`
}

func toAlertRow(record *models.AlertRecord) alertRecordRow {
	return alertRecordRow{AlertRecord: *record, Trigger: triggerJSON{TriggerData: record.TriggerData}}
}

func (r alertRecordRow) record() models.AlertRecord {
	rec := r.AlertRecord
	rec.TriggerData = r.Trigger.TriggerData
	return rec
}

func toAlertRecords(rows []alertRecordRow) []models.AlertRecord {
	records := make([]models.AlertRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].record()
	}
	return records
}

// AlertRepository persists warning records.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository constructs the repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// FindActive returns the open alert for (student, rule) or sql.ErrNoRows.
func (r *AlertRepository) FindActive(ctx context.Context, studentID, ruleID string) (*models.AlertRecord, error) {
	query := "SELECT " + alertColumns + " FROM warning_records WHERE student_id = $1 AND rule_id = $2 AND status = $3 LIMIT 1"
	var row alertRecordRow
	if err := r.db.GetContext(ctx, &row, query, studentID, ruleID, models.AlertStatusActive); err != nil {
		return nil, err
	}
	record := row.record()
	return &record, nil
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.AlertRecord, error) {
	query := "SELECT " + alertColumns + " FROM warning_records WHERE id = $1"
	var row alertRecordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	record := row.record()
	return &record, nil
}

// Insert creates a new active alert. A concurrent active alert for the same pair surfaces as ErrConflict.
func (r *AlertRepository) Insert(ctx context.Context, record *models.AlertRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	if record.Status == "" {
		record.Status = models.AlertStatusActive
	}
	const query = `INSERT INTO warning_records (id, student_id, student_name, class_id, class_name, rule_id, rule_name, severity, trigger_data, status, created_at, updated_at)
VALUES (:id, :student_id, :student_name, :class_id, :class_name, :rule_id, :rule_name, :severity, :trigger_data, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, toAlertRow(record)); err != nil {
		return fmt.Errorf("insert warning record: %w", mapConstraintError(err))
	}
	return nil
}

// UpdateTrigger refreshes the payload of an open alert. Severity and created_at stay untouched.
func (r *AlertRepository) UpdateTrigger(ctx context.Context, id string, trigger models.TriggerData) error {
	const query = `UPDATE warning_records SET trigger_data = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, triggerJSON{TriggerData: trigger}, time.Now().UTC(), models.AlertStatusActive)
	if err != nil {
		return fmt.Errorf("update warning trigger: %w", err)
	}
	return expectAffected(res)
}

// Transition applies a lifecycle action only when the alert is in one of the action's source states.
// sql.ErrNoRows means the alert is missing or no longer in a source state.
func (r *AlertRepository) Transition(ctx context.Context, t models.AlertTransition) error {
	sources := t.Action.Sources()
	if len(sources) == 0 {
		return fmt.Errorf("unsupported alert action %q", t.Action)
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	args := []interface{}{t.ID, t.Action.Target(), at, t.Actor, t.Notes}
	var set string
	switch t.Action {
	case models.AlertActionAcknowledge:
		set = "status = $2, acknowledged_at = $3, acknowledged_by = $4, notes = COALESCE($5, notes), updated_at = $3"
	default:
		set = "status = $2, resolved_at = $3, resolved_by = $4, notes = COALESCE($5, notes), updated_at = $3"
	}
	for _, s := range sources {
		args = append(args, s)
	}
	query := fmt.Sprintf("UPDATE warning_records SET %s WHERE id = $1 AND status IN (%s)", set, placeholders(6, len(sources)))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition warning record: %w", err)
	}
	return expectAffected(res)
}

// List returns alerts matching the filter together with the total count.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, int, error) {
	where, args := buildAlertWhere(filter)

	countQuery := "SELECT COUNT(*) FROM warning_records" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count warning records: %w", err)
	}

	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM warning_records%s ORDER BY created_at %s, id ASC LIMIT $%d OFFSET $%d",
		alertColumns, where, order, len(args)-1, len(args))

	var rows []alertRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list warning records: %w", err)
	}
	return toAlertRecords(rows), total, nil
}

// ListForStatistics returns every alert created inside the range for the given scope.
func (r *AlertRepository) ListForStatistics(ctx context.Context, rng models.TimeRange, scope models.StatisticsScope) ([]models.AlertRecord, error) {
	filter := models.AlertFilter{StudentIDs: scope.StudentIDs, ClassIDs: scope.ClassIDs}
	if !rng.From.IsZero() {
		from := rng.From
		filter.CreatedFrom = &from
	}
	if !rng.To.IsZero() {
		to := rng.To
		filter.CreatedTo = &to
	}
	where, args := buildAlertWhere(filter)
	query := "SELECT " + alertColumns + " FROM warning_records" + where + " ORDER BY created_at ASC"
	var rows []alertRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list warning records for statistics: %w", err)
	}
	return toAlertRecords(rows), nil
}

// ListByStudent returns a student's full alert history, newest first.
func (r *AlertRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AlertRecord, error) {
	query := "SELECT " + alertColumns + " FROM warning_records WHERE student_id = $1 ORDER BY created_at DESC"
	var rows []alertRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student warning records: %w", err)
	}
	return toAlertRecords(rows), nil
}

func buildAlertWhere(filter models.AlertFilter) (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}
	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", column, placeholders(len(args)+1, len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}

	in("student_id", filter.StudentIDs)
	in("class_id", filter.ClassIDs)
	if filter.RuleID != "" {
		args = append(args, filter.RuleID)
		conds = append(conds, fmt.Sprintf("rule_id = $%d", len(args)))
	}
	severities := make([]string, len(filter.Severities))
	for i, s := range filter.Severities {
		severities[i] = string(s)
	}
	in("severity", severities)
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	in("status", statuses)
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
