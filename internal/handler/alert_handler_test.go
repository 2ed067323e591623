package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

type alertServiceMock struct {
	record      *models.AlertRecord
	records     []models.AlertRecord
	pagination  *models.Pagination
	batch       *models.BatchResult
	err         error
	lastQuery   dto.AlertListQuery
	lastID      string
	lastActor   string
	lastNotes   *string
	lastAction  models.AlertAction
	lastIDs     []string
	batchCalled bool
}

func (m *alertServiceMock) Get(ctx context.Context, id string) (*models.AlertRecord, error) {
	m.lastID = id
	return m.record, m.err
}

func (m *alertServiceMock) List(ctx context.Context, query dto.AlertListQuery) ([]models.AlertRecord, *models.Pagination, error) {
	m.lastQuery = query
	return m.records, m.pagination, m.err
}

func (m *alertServiceMock) transition(action models.AlertAction, id, actor string, notes *string) (*models.AlertRecord, error) {
	m.lastAction, m.lastID, m.lastActor, m.lastNotes = action, id, actor, notes
	return m.record, m.err
}

func (m *alertServiceMock) Acknowledge(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return m.transition(models.AlertActionAcknowledge, id, actor, notes)
}

func (m *alertServiceMock) Resolve(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return m.transition(models.AlertActionResolve, id, actor, notes)
}

func (m *alertServiceMock) Dismiss(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error) {
	return m.transition(models.AlertActionDismiss, id, actor, notes)
}

func (m *alertServiceMock) BatchProcess(ctx context.Context, ids []string, action models.AlertAction, actor string, notes *string) (*models.BatchResult, error) {
	m.batchCalled = true
	m.lastIDs, m.lastAction, m.lastActor, m.lastNotes = ids, action, actor, notes
	return m.batch, m.err
}

func TestAlertHandlerListParsesQuery(t *testing.T) {
	svc := &alertServiceMock{
		records:    []models.AlertRecord{{ID: "alert-1"}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodGet, "/warnings/alerts?status=active&status=acknowledged&severity=high&class_id=c1,c2&created_from=2024-01-01&page=2&page_size=10&sort=ASC", "", adminClaims())

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"active", "acknowledged"}, svc.lastQuery.Statuses)
	assert.Equal(t, []string{"c1", "c2"}, svc.lastQuery.ClassIDs)
	require.NotNil(t, svc.lastQuery.CreatedFrom)
	assert.Equal(t, 2024, svc.lastQuery.CreatedFrom.Year())
	assert.Equal(t, 2, svc.lastQuery.Page)
	assert.Equal(t, "asc", svc.lastQuery.SortOrder)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 11, env.Pagination.TotalCount)
}

func TestAlertHandlerListCreatedToDateIsInclusive(t *testing.T) {
	svc := &alertServiceMock{pagination: &models.Pagination{Page: 1, PageSize: 20}}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodGet, "/warnings/alerts?created_from=2026-10-17&created_to=2026-10-17", "", adminClaims())

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastQuery.CreatedFrom)
	require.NotNil(t, svc.lastQuery.CreatedTo)
	assert.Equal(t, time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC), *svc.lastQuery.CreatedFrom)
	assert.Equal(t, time.Date(2026, time.October, 17, 23, 59, 59, 999999000, time.UTC), *svc.lastQuery.CreatedTo)
}

func TestAlertHandlerListRejectsBadDate(t *testing.T) {
	svc := &alertServiceMock{}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodGet, "/warnings/alerts?created_to=yesterday", "", adminClaims())

	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertHandlerAcknowledgeWithoutBody(t *testing.T) {
	svc := &alertServiceMock{record: &models.AlertRecord{ID: "alert-1", Status: models.AlertStatusAcknowledged}}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodPost, "/warnings/alerts/alert-1/acknowledge", "", &models.JWTClaims{UserID: "teacher-7", Role: models.RoleTeacher})
	c.Params = gin.Params{{Key: "id", Value: "alert-1"}}

	h.Acknowledge(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AlertActionAcknowledge, svc.lastAction)
	assert.Equal(t, "alert-1", svc.lastID)
	assert.Equal(t, "teacher-7", svc.lastActor)
	assert.Nil(t, svc.lastNotes)
}

func TestAlertHandlerResolvePassesNotes(t *testing.T) {
	svc := &alertServiceMock{record: &models.AlertRecord{ID: "alert-1", Status: models.AlertStatusResolved}}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodPost, "/warnings/alerts/alert-1/resolve", `{"notes":"parent meeting held"}`, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "alert-1"}}

	h.Resolve(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastNotes)
	assert.Equal(t, "parent meeting held", *svc.lastNotes)

	var data models.AlertRecord
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	assert.Equal(t, models.AlertStatusResolved, data.Status)
}

func TestAlertHandlerClosedAlertConflict(t *testing.T) {
	svc := &alertServiceMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "alert is already resolved")}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodPost, "/warnings/alerts/alert-1/dismiss", `{}`, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "alert-1"}}

	h.Dismiss(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeEnvelope(t, w).Error.Code)
}

func TestAlertHandlerMalformedBody(t *testing.T) {
	svc := &alertServiceMock{}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodPost, "/warnings/alerts/alert-1/resolve", `{"notes":`, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "alert-1"}}

	h.Resolve(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastID)
}

func TestAlertHandlerBatch(t *testing.T) {
	svc := &alertServiceMock{batch: &models.BatchResult{Successful: 1, Failed: 1, Errors: []models.BatchError{{ID: "b", Error: "alert is already resolved"}}}}
	h := NewAlertHandler(svc)
	c, w := newTestContext(http.MethodPost, "/warnings/alerts/batch", `{"ids":["a","b"],"action":"RESOLVE"}`, adminClaims())

	h.Batch(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AlertActionResolve, svc.lastAction)
	assert.Equal(t, []string{"a", "b"}, svc.lastIDs)

	var result models.BatchResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, 1, result.Failed)
}

func TestAlertHandlerBatchValidation(t *testing.T) {
	cases := map[string]string{
		"no ids":         `{"ids":[],"action":"resolve"}`,
		"unknown action": `{"ids":["a"],"action":"archive"}`,
		"malformed":      `{"ids":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &alertServiceMock{}
			h := NewAlertHandler(svc)
			c, w := newTestContext(http.MethodPost, "/warnings/alerts/batch", body, adminClaims())

			h.Batch(c)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, svc.batchCalled)
		})
	}
}
