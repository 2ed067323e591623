package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

func testStudent() models.StudentRef {
	return models.StudentRef{ID: "stu-1", FullName: "Siti Rahma", ClassID: strPtr("class-10a"), ClassName: strPtr("X IPA 1")}
}

func testRule(severity models.Severity) models.WarningRule {
	return models.WarningRule{
		ID:       "rule-1",
		Name:     "Low scores",
		Severity: severity,
		IsActive: true,
		Conditions: models.Conditions{
			{Metric: "avg_score", Operator: models.OpLessThan, Value: 60},
		},
	}
}

func trigger(value float64) models.TriggerData {
	return models.TriggerData{Metric: "avg_score", Value: value, Threshold: 60, Operator: models.OpLessThan, Timeframe: 30}
}

func TestAlertServiceOnTriggerDeduplicatesOpenAlert(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})
	ctx := context.Background()

	created, first, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityHigh), trigger(55))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AlertStatusActive, first.Status)
	assert.Equal(t, "X IPA 1", *first.ClassName)

	created, second, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityHigh), trigger(52))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	records := store.all()
	require.Len(t, records, 1)
	assert.InDelta(t, 52, records[0].TriggerData.Value, 0.001)
}

func TestAlertServiceOnTriggerKeepsSeverityOfOpenAlert(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})
	ctx := context.Background()

	_, _, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityMedium), trigger(55))
	require.NoError(t, err)
	created, record, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityCritical), trigger(40))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, models.SeverityMedium, record.Severity)
	assert.Equal(t, models.SeverityMedium, store.all()[0].Severity)
}

func TestAlertServiceOnTriggerConcurrentCallsCreateOneAlert(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			created, _, err := svc.OnTrigger(context.Background(), testStudent(), testRule(models.SeverityHigh), trigger(v))
			require.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(float64(40 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, store.all(), 1)
	assert.Equal(t, 0, svc.locks.size())
}

func TestAlertServiceOnTriggerAfterResolutionOpensNewAlert(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})
	ctx := context.Background()

	_, first, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityHigh), trigger(55))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, first.ID, "teacher-1", strPtr("met with parents"))
	require.NoError(t, err)

	created, second, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityCritical), trigger(50))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.SeverityCritical, second.Severity)
	assert.Len(t, store.all(), 2)

	resolved, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, resolved.Severity)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
}

func TestAlertServiceOnTriggerStoreFailure(t *testing.T) {
	store := newMemAlertStore()
	store.findErr = errors.New("connection refused")
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})

	_, _, err := svc.OnTrigger(context.Background(), testStudent(), testRule(models.SeverityHigh), trigger(55))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStoreUnavailable))
}

func TestAlertServiceLifecycle(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})
	ctx := context.Background()
	id := store.seed(models.AlertRecord{StudentID: "stu-1", RuleID: "rule-1", Severity: models.SeverityHigh, Status: models.AlertStatusActive})

	acked, err := svc.Acknowledge(ctx, id, "teacher-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "teacher-1", *acked.AcknowledgedBy)

	again, err := svc.Acknowledge(ctx, id, "teacher-2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, again.Status)
	assert.Equal(t, "teacher-1", *again.AcknowledgedBy)

	_, err = svc.Resolve(ctx, id, "teacher-1", strPtr("   "))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	resolved, err := svc.Resolve(ctx, id, "teacher-1", strPtr("tutoring arranged"))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Equal(t, "tutoring arranged", *resolved.Notes)
	assert.NotNil(t, resolved.ResolvedAt)

	for _, action := range []func(context.Context, string, string, *string) (*models.AlertRecord, error){svc.Acknowledge, svc.Resolve, svc.Dismiss} {
		_, err := action(ctx, id, "teacher-1", strPtr("late"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	}
	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, stored.Status)
	assert.Equal(t, "tutoring arranged", *stored.Notes)
}

func TestAlertServiceDismissFromActive(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{})
	id := store.seed(models.AlertRecord{StudentID: "stu-1", RuleID: "rule-1", Status: models.AlertStatusActive})

	record, err := svc.Dismiss(context.Background(), id, "admin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusDismissed, record.Status)
	assert.Nil(t, record.Notes)
}

func TestAlertServiceUnknownAlert(t *testing.T) {
	svc := NewAlertService(newMemAlertStore(), nil, nil, nil, AlertServiceConfig{})
	_, err := svc.Acknowledge(context.Background(), "missing", "teacher-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAlertServiceBatchProcessPartialSuccess(t *testing.T) {
	store := newMemAlertStore()
	svc := NewAlertService(store, nil, nil, nil, AlertServiceConfig{BatchConcurrency: 2})
	active := store.seed(models.AlertRecord{StudentID: "stu-1", RuleID: "rule-1", Status: models.AlertStatusActive})
	closed := store.seed(models.AlertRecord{StudentID: "stu-2", RuleID: "rule-1", Status: models.AlertStatusResolved})

	result, err := svc.BatchProcess(context.Background(), []string{active, closed}, models.AlertActionResolve, "admin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, closed, result.Errors[0].ID)

	record, err := store.GetByID(context.Background(), active)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, record.Status)
	assert.Equal(t, defaultBatchResolveNotes, *record.Notes)
}

func TestAlertServiceBatchProcessRejectsUnknownAction(t *testing.T) {
	svc := NewAlertService(newMemAlertStore(), nil, nil, nil, AlertServiceConfig{})
	_, err := svc.BatchProcess(context.Background(), []string{"a"}, models.AlertAction("archive"), "admin-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAlertServiceWritesInvalidateCachedReads(t *testing.T) {
	cacheRepo := newMemCache()
	cache := NewCacheService(cacheRepo, nil, 0, nil, true)
	ctx := context.Background()
	statsKey := NewCacheKey(CacheResourceStatistics, "from", "a", "to", "b")
	require.NoError(t, cache.Set(ctx, profileCacheKey("stu-1"), map[string]int{"total": 1}, 0))
	require.NoError(t, cache.Set(ctx, profileCacheKey("stu-2"), map[string]int{"total": 1}, 0))
	require.NoError(t, cache.Set(ctx, statsKey, map[string]int{"total": 1}, 0))

	svc := NewAlertService(newMemAlertStore(), cache, nil, nil, AlertServiceConfig{})
	_, _, err := svc.OnTrigger(ctx, testStudent(), testRule(models.SeverityHigh), trigger(55))
	require.NoError(t, err)

	assert.False(t, cacheRepo.has(profileCacheKey("stu-1")))
	assert.True(t, cacheRepo.has(profileCacheKey("stu-2")))
	assert.False(t, cacheRepo.has(statsKey))
}

func TestAlertServiceListValidatesFilters(t *testing.T) {
	svc := NewAlertService(newMemAlertStore(), nil, nil, nil, AlertServiceConfig{})

	_, _, err := svc.List(context.Background(), dto.AlertListQuery{Severities: []string{"urgent"}, Statuses: []string{"open"}})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Len(t, appErr.Details, 2)

	_, pagination, err := svc.List(context.Background(), dto.AlertListQuery{Severities: []string{"HIGH"}, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, maxAlertPageSize, pagination.PageSize)
}
