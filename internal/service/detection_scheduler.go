package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/jobs"
)

const detectionJobType = "warning_detection"

type detectionRunner interface {
	Run(ctx context.Context, scope models.TargetScope, trigger models.RunTrigger) (*models.DetectionResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// DetectionJob is the payload of a queued detection run.
type DetectionJob struct {
	Scope   models.TargetScope
	Trigger models.RunTrigger
}

// DetectionScheduler runs detection in the background, on demand and on a fixed interval.
type DetectionScheduler struct {
	runner   detectionRunner
	queue    jobQueue
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDetectionScheduler constructs the scheduler. The queue is attached with AttachQueue because the
// queue handler is the scheduler itself.
func NewDetectionScheduler(runner detectionRunner, interval time.Duration, logger *zap.Logger) *DetectionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectionScheduler{runner: runner, interval: interval, logger: logger}
}

// AttachQueue sets the queue jobs are dispatched on.
func (s *DetectionScheduler) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// Enqueue schedules a detection run. Scopes already waiting or running are rejected with a conflict.
func (s *DetectionScheduler) Enqueue(scope models.TargetScope, trigger models.RunTrigger) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "background detection is disabled")
	}
	id := uuid.NewString()
	err := s.queue.Enqueue(jobs.Job{
		ID:      id,
		Type:    detectionJobType,
		Key:     detectionJobKey(scope),
		Payload: DetectionJob{Scope: scope, Trigger: trigger},
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		return "", appErrors.Clone(appErrors.ErrConflict, "a detection run for this scope is already pending")
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to enqueue detection run")
	}
	return id, nil
}

// Handle is the queue handler. A run with no active rules is not retried.
func (s *DetectionScheduler) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(DetectionJob)
	if !ok {
		s.logger.Error("unexpected detection job payload", zap.String("job_id", job.ID))
		return nil
	}
	result, err := s.runner.Run(ctx, payload.Scope, payload.Trigger)
	if errors.Is(err, appErrors.ErrNoActiveRules) {
		s.logger.Info("detection skipped, no active rules", zap.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Sugar().Infow("background detection finished",
		"job_id", job.ID,
		"processed", result.Processed,
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
	)
	return nil
}

// Start begins the interval ticker. A non-positive interval disables it.
func (s *DetectionScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("detection schedule started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and waits for the loop to exit.
func (s *DetectionScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *DetectionScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Enqueue(models.TargetScope{Type: models.ScopeAll}, models.RunTriggerScheduled); err != nil {
				s.logger.Warn("scheduled detection not enqueued", zap.Error(err))
			}
		}
	}
}

func detectionJobKey(scope models.TargetScope) string {
	return fmt.Sprintf("detect:%s:%s", scope.Type, strings.Join(scope.IDs, ","))
}
