package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/middleware/requestid"
)

type activeRuleSource interface {
	ActiveRules(ctx context.Context) ([]models.WarningRule, error)
}

type triggerSink interface {
	OnTrigger(ctx context.Context, student models.StudentRef, rule models.WarningRule, trigger models.TriggerData) (bool, *models.AlertRecord, error)
}

type detectionRunStore interface {
	Create(ctx context.Context, run *models.DetectionRun) error
	Finish(ctx context.Context, run *models.DetectionRun) error
	List(ctx context.Context, filter models.DetectionRunFilter) ([]models.DetectionRun, int, error)
}

// DetectionConfig tunes detection runs.
type DetectionConfig struct {
	Concurrency  int
	StoreTimeout time.Duration
}

// DetectionService evaluates active rules against students and routes triggers to the alert lifecycle.
type DetectionService struct {
	students StudentDirectory
	rules    activeRuleSource
	metrics  metricComputer
	alerts   triggerSink
	runs     detectionRunStore
	stats    *MetricsService
	logger   *zap.Logger
	cfg      DetectionConfig
	now      func() time.Time
}

// NewDetectionService constructs the engine. runs may be nil to skip the run log.
func NewDetectionService(students StudentDirectory, rules activeRuleSource, metrics metricComputer, alerts triggerSink, runs detectionRunStore, stats *MetricsService, logger *zap.Logger, cfg DetectionConfig) *DetectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &DetectionService{
		students: students,
		rules:    rules,
		metrics:  metrics,
		alerts:   alerts,
		runs:     runs,
		stats:    stats,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ParseScope validates a detect request into a target scope.
func ParseScope(req dto.DetectRequest) (models.TargetScope, error) {
	scope := models.TargetScope{Type: models.ScopeType(strings.ToLower(strings.TrimSpace(req.Scope)))}
	if !scope.Valid() {
		return scope, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid detection scope"),
			appErrors.FieldDetail{Field: "scope", Message: "must be one of student, class, all"})
	}
	if scope.Type != models.ScopeAll {
		scope.IDs = normaliseIDs(req.IDs)
	}
	return scope, nil
}

// Run detects risk for every student in scope. Student failures are collected in the result and never
// abort the run. A cancelled run returns the partial result along with the context error.
func (s *DetectionService) Run(ctx context.Context, scope models.TargetScope, trigger models.RunTrigger) (*models.DetectionResult, error) {
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown scope %q", scope.Type))
	}

	students, err := s.resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	result := &models.DetectionResult{Errors: []string{}}
	if len(students) == 0 {
		return result, nil
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoActiveRules, "")
	}

	started := s.now().UTC()
	run := s.startRun(ctx, scope, trigger, started)
	if run != nil {
		result.RunID = run.ID
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, student := range students {
		if ctx.Err() != nil {
			break
		}
		student := student
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			created, updated, errs := s.detectStudent(context.WithoutCancel(ctx), student, rules)
			mu.Lock()
			result.Processed++
			result.Created += created
			result.Updated += updated
			result.Errors = append(result.Errors, errs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(result.Errors)

	status := models.RunStatusCompleted
	runErr := ctx.Err()
	if runErr != nil {
		status = models.RunStatusCancelled
	}
	duration := s.now().UTC().Sub(started)
	s.finishRun(ctx, run, result, status, duration)
	s.stats.ObserveDetectionRun(status, len(result.Errors), duration)
	s.logger.Sugar().Infow("warning detection finished",
		"run_id", result.RunID,
		"scope", scope.Type,
		"trigger", trigger,
		"status", status,
		"processed", result.Processed,
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
		"request_id", requestid.FromContext(ctx),
	)
	return result, runErr
}

// detectStudent evaluates every rule for one student. ctx is detached from run cancellation so a
// started student always finishes; each rule gets its own store deadline.
func (s *DetectionService) detectStudent(ctx context.Context, student models.StudentRef, rules []models.WarningRule) (created, updated int, errs []string) {
	for _, rule := range rules {
		if err := s.detectRule(ctx, student, rule, &created, &updated); err != nil {
			errs = append(errs, fmt.Sprintf("student %s rule %s: %v", student.ID, rule.ID, err))
		}
	}
	return created, updated, errs
}

func (s *DetectionService) detectRule(ctx context.Context, student models.StudentRef, rule models.WarningRule, created, updated *int) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	trigger, err := evaluateRule(ctx, s.metrics, student.ID, rule)
	if err != nil || trigger == nil {
		return err
	}
	isNew, _, err := s.alerts.OnTrigger(ctx, student, rule, *trigger)
	if err != nil {
		return err
	}
	if isNew {
		*created++
	} else {
		*updated++
	}
	return nil
}

func (s *DetectionService) resolve(ctx context.Context, scope models.TargetScope) ([]models.StudentRef, error) {
	if scope.Type != models.ScopeAll && len(scope.IDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	students, err := s.students.ResolveScope(ctx, scope)
	if err != nil {
		return nil, storeFailure(err, "failed to resolve detection scope")
	}
	return students, nil
}

func (s *DetectionService) activeRules(ctx context.Context) ([]models.WarningRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.rules.ActiveRules(ctx)
}

func (s *DetectionService) startRun(ctx context.Context, scope models.TargetScope, trigger models.RunTrigger, started time.Time) *models.DetectionRun {
	if s.runs == nil {
		return nil
	}
	run := &models.DetectionRun{
		ScopeType: scope.Type,
		ScopeIDs:  scope.IDs,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		Errors:    []string{},
		StartedAt: started,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("failed to record detection run", zap.Error(err))
		return nil
	}
	return run
}

func (s *DetectionService) finishRun(ctx context.Context, run *models.DetectionRun, result *models.DetectionResult, status models.RunStatus, duration time.Duration) {
	if run == nil {
		return
	}
	finished := run.StartedAt.Add(duration)
	ms := duration.Milliseconds()
	run.Status = status
	run.Processed = result.Processed
	run.Created = result.Created
	run.Updated = result.Updated
	run.ErrorCount = len(result.Errors)
	run.Errors = result.Errors
	run.FinishedAt = &finished
	run.DurationMs = &ms

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.runs.Finish(ctx, run); err != nil {
		s.logger.Warn("failed to finish detection run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// Runs lists the detection run log, newest first.
func (s *DetectionService) Runs(ctx context.Context, query dto.DetectionRunQuery) ([]models.DetectionRun, *models.Pagination, error) {
	if s.runs == nil {
		return []models.DetectionRun{}, &models.Pagination{Page: 1, PageSize: 0}, nil
	}
	filter := models.DetectionRunFilter{
		Status:   models.RunStatus(strings.ToLower(query.Status)),
		Trigger:  models.RunTrigger(strings.ToLower(query.Trigger)),
		Page:     query.Page,
		PageSize: query.PageSize,
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
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, storeFailure(err, "failed to list detection runs")
	}
	return runs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
