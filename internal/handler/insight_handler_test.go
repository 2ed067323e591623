package handler

import (
	"context"
	"errors"
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

type statisticsServiceMock struct {
	snapshot  *models.StatisticsSnapshot
	hit       bool
	err       error
	lastQuery dto.StatisticsQuery
}

func (m *statisticsServiceMock) Statistics(ctx context.Context, query dto.StatisticsQuery) (*models.StatisticsSnapshot, bool, error) {
	m.lastQuery = query
	return m.snapshot, m.hit, m.err
}

type profileServiceMock struct {
	profile *models.RiskProfile
	hit     bool
	err     error
	lastID  string
}

func (m *profileServiceMock) Build(ctx context.Context, studentID string) (*models.RiskProfile, bool, error) {
	m.lastID = studentID
	return m.profile, m.hit, m.err
}

func TestInsightHandlerStatistics(t *testing.T) {
	stats := &statisticsServiceMock{snapshot: &models.StatisticsSnapshot{Summary: models.StatisticsSummary{Total: 3}}, hit: true}
	h := NewInsightHandler(stats, &profileServiceMock{})
	c, w := newTestContext(http.MethodGet, "/warnings/statistics?from=2024-03-01&to=2024-03-31T23:59:59Z&class_id=c1", "", adminClaims())

	h.Statistics(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stats.lastQuery.From)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *stats.lastQuery.From)
	assert.Equal(t, []string{"c1"}, stats.lastQuery.ClassIDs)

	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestInsightHandlerStatisticsBadRange(t *testing.T) {
	stats := &statisticsServiceMock{err: appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid statistics range"),
		appErrors.FieldDetail{Field: "from", Message: "must not be after to"})}
	h := NewInsightHandler(stats, &profileServiceMock{})
	c, w := newTestContext(http.MethodGet, "/warnings/statistics?from=2024-03-10&to=2024-03-01", "", adminClaims())

	h.Statistics(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "from", decodeEnvelope(t, w).Error.Details[0].Field)
}

func TestInsightHandlerProfile(t *testing.T) {
	profiles := &profileServiceMock{profile: &models.RiskProfile{StudentID: "stu-1"}}
	h := NewInsightHandler(&statisticsServiceMock{}, profiles)
	c, w := newTestContext(http.MethodGet, "/warnings/students/stu-1/profile", "", adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	h.Profile(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", profiles.lastID)
	assert.Equal(t, false, decodeEnvelope(t, w).Meta["cache_hit"])
}

func TestInsightHandlerProfileErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"unknown student": {err: appErrors.Clone(appErrors.ErrNotFound, "student not found"), status: http.StatusNotFound},
		"store down":      {err: appErrors.Unavailable(errors.New("timeout"), ""), status: http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewInsightHandler(&statisticsServiceMock{}, &profileServiceMock{err: tc.err})
			c, w := newTestContext(http.MethodGet, "/warnings/students/x/profile", "", adminClaims())
			c.Params = gin.Params{{Key: "id", Value: "x"}}

			h.Profile(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestInsightHandlerStatisticsDateOnlyToCoversWholeDay(t *testing.T) {
	stats := &statisticsServiceMock{snapshot: &models.StatisticsSnapshot{}}
	h := NewInsightHandler(stats, &profileServiceMock{})
	c, w := newTestContext(http.MethodGet, "/warnings/statistics?from=2026-10-01&to=2026-10-17", "", adminClaims())

	h.Statistics(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stats.lastQuery.To)
	assert.Equal(t, time.Date(2026, time.October, 17, 23, 59, 59, 999999000, time.UTC), *stats.lastQuery.To)
	assert.True(t, models.TimeRange{From: *stats.lastQuery.From, To: *stats.lastQuery.To}.
		Contains(time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)))
}
