package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/middleware"
	"github.com/noah-isme/sma-warning-api/internal/models"
	"github.com/noah-isme/sma-warning-api/pkg/response"
)

type statisticsService interface {
	Statistics(ctx context.Context, query dto.StatisticsQuery) (*models.StatisticsSnapshot, bool, error)
}

type profileService interface {
	Build(ctx context.Context, studentID string) (*models.RiskProfile, bool, error)
}

// InsightHandler serves aggregated alert statistics and per-student risk profiles.
type InsightHandler struct {
	statistics statisticsService
	profiles   profileService
}

// NewInsightHandler builds a new handler.
func NewInsightHandler(statistics statisticsService, profiles profileService) *InsightHandler {
	return &InsightHandler{statistics: statistics, profiles: profiles}
}

// Statistics godoc
// @Summary Alert statistics
// @Tags Warnings
// @Produce json
// @Param from query string false "Range start (RFC3339 or YYYY-MM-DD), default 30 days ago"
// @Param to query string false "Range end (RFC3339 or YYYY-MM-DD), default now"
// @Param class_id query []string false "Class IDs" collectionFormat(csv)
// @Param student_id query []string false "Student IDs" collectionFormat(csv)
// @Success 200 {object} response.Envelope
// @Router /warnings/statistics [get]
func (h *InsightHandler) Statistics(c *gin.Context) {
	start := time.Now()
	from, err := queryTime(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryUntil(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	snapshot, hit, err := h.statistics.Statistics(c.Request.Context(), dto.StatisticsQuery{
		From:       from,
		To:         to,
		ClassIDs:   queryList(c, "class_id"),
		StudentIDs: queryList(c, "student_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil, middleware.CacheMeta(c, hit, start))
}

// Profile godoc
// @Summary Student risk profile
// @Tags Warnings
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /warnings/students/{id}/profile [get]
func (h *InsightHandler) Profile(c *gin.Context) {
	start := time.Now()
	profile, hit, err := h.profiles.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil, middleware.CacheMeta(c, hit, start))
}
