package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/jobs"
)

type blockingRunner struct {
	mu      sync.Mutex
	scopes  []models.TargetScope
	release chan struct{}
	started chan struct{}
	err     error
}

func (r *blockingRunner) Run(ctx context.Context, scope models.TargetScope, trigger models.RunTrigger) (*models.DetectionResult, error) {
	r.mu.Lock()
	r.scopes = append(r.scopes, scope)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.DetectionResult{Processed: 1, Errors: []string{}}, nil
}

func (r *blockingRunner) runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

func startScheduler(t *testing.T, runner detectionRunner, interval time.Duration) (*DetectionScheduler, *jobs.Queue) {
	t.Helper()
	scheduler := NewDetectionScheduler(runner, interval, nil)
	queue := jobs.NewQueue("warning-detection-test", scheduler.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: 10 * time.Millisecond})
	scheduler.AttachQueue(queue)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)
	return scheduler, queue
}

func TestDetectionSchedulerRejectsDuplicateScope(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	scheduler, queue := startScheduler(t, runner, 0)
	scope := models.TargetScope{Type: models.ScopeClass, IDs: []string{"class-10a"}}

	id, err := scheduler.Enqueue(scope, models.RunTriggerAPI)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	<-runner.started

	_, err = scheduler.Enqueue(scope, models.RunTriggerAPI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = scheduler.Enqueue(models.TargetScope{Type: models.ScopeClass, IDs: []string{"class-10b"}}, models.RunTriggerAPI)
	require.NoError(t, err)

	close(runner.release)
	require.Eventually(t, func() bool { return !queue.Pending(detectionJobKey(scope)) }, 2*time.Second, 10*time.Millisecond)
}

func TestDetectionSchedulerWithoutQueue(t *testing.T) {
	scheduler := NewDetectionScheduler(&blockingRunner{}, 0, nil)
	_, err := scheduler.Enqueue(models.TargetScope{Type: models.ScopeAll}, models.RunTriggerAPI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestDetectionSchedulerHandleSkipsNoActiveRules(t *testing.T) {
	runner := &blockingRunner{err: appErrors.Clone(appErrors.ErrNoActiveRules, "")}
	scheduler := NewDetectionScheduler(runner, 0, nil)

	err := scheduler.Handle(context.Background(), jobs.Job{ID: "j1", Payload: DetectionJob{Scope: models.TargetScope{Type: models.ScopeAll}, Trigger: models.RunTriggerScheduled}})
	assert.NoError(t, err)
	assert.Equal(t, 1, runner.runs())

	runner.err = appErrors.Unavailable(errors.New("db down"), "")
	err = scheduler.Handle(context.Background(), jobs.Job{ID: "j2", Payload: DetectionJob{Scope: models.TargetScope{Type: models.ScopeAll}}})
	assert.Error(t, err)

	assert.NoError(t, scheduler.Handle(context.Background(), jobs.Job{ID: "j3", Payload: "garbage"}))
}

func TestDetectionSchedulerIntervalEnqueuesScheduledRuns(t *testing.T) {
	runner := &blockingRunner{}
	scheduler, _ := startScheduler(t, runner, 20*time.Millisecond)

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return runner.runs() >= 1 }, 2*time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, models.ScopeAll, runner.scopes[0].Type)
}

func TestDetectionJobKey(t *testing.T) {
	assert.Equal(t, "detect:all:", detectionJobKey(models.TargetScope{Type: models.ScopeAll}))
	assert.Equal(t, "detect:student:a,b", detectionJobKey(models.TargetScope{Type: models.ScopeStudent, IDs: []string{"a", "b"}}))
}
