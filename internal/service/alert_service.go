package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

const (
	defaultBatchResolveNotes = "resolved in batch"
	defaultBatchDismissNotes = "dismissed in batch"
	maxAlertPageSize         = 200
)

type alertStore interface {
	FindActive(ctx context.Context, studentID, ruleID string) (*models.AlertRecord, error)
	Insert(ctx context.Context, record *models.AlertRecord) error
	UpdateTrigger(ctx context.Context, id string, trigger models.TriggerData) error
	Transition(ctx context.Context, t models.AlertTransition) error
	GetByID(ctx context.Context, id string) (*models.AlertRecord, error)
	List(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, int, error)
}

// AlertServiceConfig tunes lifecycle operations.
type AlertServiceConfig struct {
	BatchConcurrency int
	StoreTimeout     time.Duration
}

// AlertService owns the alert lifecycle: trigger upserts, operator transitions and listing.
type AlertService struct {
	repo    alertStore
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	locks   *keyedMutex
	cfg     AlertServiceConfig
	now     func() time.Time
}

// NewAlertService constructs the service.
func NewAlertService(repo alertStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg AlertServiceConfig) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &AlertService{repo: repo, cache: cache, metrics: metrics, logger: logger, locks: newKeyedMutex(), cfg: cfg, now: time.Now}
}

// OnTrigger records a rule trigger for a student. It updates the open alert of the (student, rule)
// pair when one exists and creates one otherwise; created reports which happened.
func (s *AlertService) OnTrigger(ctx context.Context, student models.StudentRef, rule models.WarningRule, trigger models.TriggerData) (bool, *models.AlertRecord, error) {
	unlock := s.locks.Lock(student.ID + "|" + rule.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	// A concurrent writer can close the open alert or insert one between lookup and write; one retry
	// re-reads the pair and takes the other branch.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindActive(ctx, student.ID, rule.ID)
		switch {
		case err == nil:
			if err := s.repo.UpdateTrigger(ctx, existing.ID, trigger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				return false, nil, storeFailure(err, "failed to update alert trigger")
			}
			existing.TriggerData = trigger
			existing.UpdatedAt = s.now().UTC()
			s.afterWrite(ctx, existing.StudentID)
			s.metrics.RecordTrigger(false)
			return false, existing, nil
		case errors.Is(err, sql.ErrNoRows):
			record := &models.AlertRecord{
				StudentID:   student.ID,
				StudentName: student.FullName,
				ClassID:     student.ClassID,
				ClassName:   student.ClassName,
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				Severity:    rule.Severity,
				TriggerData: trigger,
				Status:      models.AlertStatusActive,
				CreatedAt:   s.now().UTC(),
			}
			if err := s.repo.Insert(ctx, record); err != nil {
				if errors.Is(err, appErrors.ErrConflict) {
					continue
				}
				return false, nil, storeFailure(err, "failed to create alert")
			}
			s.afterWrite(ctx, record.StudentID)
			s.metrics.RecordTrigger(true)
			return true, record, nil
		default:
			return false, nil, storeFailure(err, "failed to look up active alert")
		}
	}
	return false, nil, appErrors.Clone(appErrors.ErrConflict, "alert changed concurrently, retry later")
}

// Acknowledge marks an active alert as seen. Acknowledging twice is a no-op.
func (s *AlertService) Acknowledge(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return s.apply(ctx, id, models.AlertActionAcknowledge, actor, notes)
}

// Resolve closes an alert. Notes are mandatory.
func (s *AlertService) Resolve(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return s.apply(ctx, id, models.AlertActionResolve, actor, notes)
}

// Dismiss closes an alert without resolution.
func (s *AlertService) Dismiss(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return s.apply(ctx, id, models.AlertActionDismiss, actor, notes)
}

func (s *AlertService) apply(ctx context.Context, id string, action models.AlertAction, actor string, notes *string) (record *models.AlertRecord, err error) {
	defer func() { s.metrics.RecordTransition(action, err) }()

	notes = trimNotes(notes)
	if action == models.AlertActionResolve && notes == nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "resolution notes are required"),
			appErrors.FieldDetail{Field: "notes", Message: "is required"})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	record, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := checkTransition(record, action)
	if err != nil {
		return nil, err
	}
	if done {
		return record, nil
	}

	at := s.now().UTC()
	err = s.repo.Transition(ctx, models.AlertTransition{ID: id, Action: action, Actor: actor, Notes: notes, At: at})
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race with another operator: judge the call against the state that won.
		current, loadErr := s.load(ctx, id)
		if loadErr != nil {
			return nil, loadErr
		}
		done, err := checkTransition(current, action)
		if err != nil {
			return nil, err
		}
		if done {
			return current, nil
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "alert changed concurrently, retry later")
	}
	if err != nil {
		return nil, storeFailure(err, "failed to update alert status")
	}

	record.Status = action.Target()
	record.UpdatedAt = at
	if notes != nil {
		record.Notes = notes
	}
	switch action {
	case models.AlertActionAcknowledge:
		record.AcknowledgedAt = &at
		record.AcknowledgedBy = &actor
	default:
		record.ResolvedAt = &at
		record.ResolvedBy = &actor
	}
	s.afterWrite(ctx, record.StudentID)
	s.logger.Sugar().Infow("alert transitioned", "alert_id", id, "action", action, "actor", actor)
	return record, nil
}

// checkTransition reports done=true for an idempotent acknowledge and InvalidTransition for closed alerts.
func checkTransition(record *models.AlertRecord, action models.AlertAction) (bool, error) {
	if record.Status.Terminal() {
		return false, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("alert is already %s", record.Status))
	}
	if action == models.AlertActionAcknowledge && record.Status == models.AlertStatusAcknowledged {
		return true, nil
	}
	return false, nil
}

// BatchProcess applies one action to many alerts, tallying per-id outcomes.
func (s *AlertService) BatchProcess(ctx context.Context, ids []string, action models.AlertAction, actor string, notes *string) (*models.BatchResult, error) {
	if !action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action %q", action))
	}
	if trimNotes(notes) == nil {
		switch action {
		case models.AlertActionResolve:
			n := defaultBatchResolveNotes
			notes = &n
		case models.AlertActionDismiss:
			n := defaultBatchDismissNotes
			notes = &n
		}
	}

	failures := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			_, failures[i] = s.apply(ctx, id, action, actor, notes)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BatchResult{Errors: []models.BatchError{}}
	for i, err := range failures {
		if err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, models.BatchError{ID: ids[i], Error: err.Error()})
	}
	s.logger.Sugar().Infow("alert batch processed", "action", action, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id string) (*models.AlertRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.load(ctx, id)
}

// List returns alerts matching the query.
func (s *AlertService) List(ctx context.Context, query dto.AlertListQuery) ([]models.AlertRecord, *models.Pagination, error) {
	filter := models.AlertFilter{
		StudentIDs:  query.StudentIDs,
		ClassIDs:    query.ClassIDs,
		RuleID:      query.RuleID,
		CreatedFrom: query.CreatedFrom,
		CreatedTo:   query.CreatedTo,
		Page:        query.Page,
		PageSize:    query.PageSize,
		SortOrder:   query.SortOrder,
	}
	var details []appErrors.FieldDetail
	for _, raw := range query.Severities {
		sev := models.Severity(strings.ToLower(raw))
		if !sev.Valid() {
			details = append(details, appErrors.FieldDetail{Field: "severity", Message: fmt.Sprintf("unknown severity %q", raw)})
			continue
		}
		filter.Severities = append(filter.Severities, sev)
	}
	for _, raw := range query.Statuses {
		st := models.AlertStatus(strings.ToLower(raw))
		if !st.Valid() {
			details = append(details, appErrors.FieldDetail{Field: "status", Message: fmt.Sprintf("unknown status %q", raw)})
			continue
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if len(details) > 0 {
		return nil, nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid alert filter"), details...)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > maxAlertPageSize {
		filter.PageSize = maxAlertPageSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeFailure(err, "failed to list alerts")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *AlertService) load(ctx context.Context, id string) (*models.AlertRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return nil, storeFailure(err, "failed to load alert")
	}
	return record, nil
}

// afterWrite drops the cached reads that include the student's alerts.
func (s *AlertService) afterWrite(ctx context.Context, studentID string) {
	_ = s.cache.Delete(ctx, profileCacheKey(studentID))
	_ = s.cache.InvalidateResource(ctx, CacheResourceStatistics)
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
