package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/response"
)

type alertService interface {
	Get(ctx context.Context, id string) (*models.AlertRecord, error)
	List(ctx context.Context, query dto.AlertListQuery) ([]models.AlertRecord, *models.Pagination, error)
	Acknowledge(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error)
	Resolve(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error)
	Dismiss(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error)
	BatchProcess(ctx context.Context, ids []string, action models.AlertAction, actor string, notes *string) (*models.BatchResult, error)
}

const maxBatchSize = 500

type alertTransitionFunc func(ctx context.Context, id, actor string, notes *string) (*models.AlertRecord, error)

// AlertHandler exposes alert listing and lifecycle endpoints.
type AlertHandler struct {
	service alertService
}

// NewAlertHandler builds a new handler.
func NewAlertHandler(service alertService) *AlertHandler {
	return &AlertHandler{service: service}
}

// List godoc
// @Summary List alert records
// @Tags Warnings
// @Produce json
// @Param student_id query []string false "Student IDs" collectionFormat(csv)
// @Param class_id query []string false "Class IDs" collectionFormat(csv)
// @Param rule_id query string false "Rule ID"
// @Param severity query []string false "Severities" collectionFormat(csv)
// @Param status query []string false "Statuses" collectionFormat(csv)
// @Param created_from query string false "Created from (RFC3339 or YYYY-MM-DD)"
// @Param created_to query string false "Created to (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort query string false "asc or desc by created_at"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	from, err := queryTime(c, "created_from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryUntil(c, "created_to")
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), dto.AlertListQuery{
		StudentIDs:  queryList(c, "student_id"),
		ClassIDs:    queryList(c, "class_id"),
		RuleID:      c.Query("rule_id"),
		Severities:  queryList(c, "severity"),
		Statuses:    queryList(c, "status"),
		CreatedFrom: from,
		CreatedTo:   to,
		Page:        parseQueryInt(c, "page", 1),
		PageSize:    parseQueryInt(c, "page_size", 20),
		SortOrder:   strings.ToLower(c.Query("sort")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get alert record
// @Tags Warnings
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts/{id} [get]
func (h *AlertHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Acknowledge godoc
// @Summary Acknowledge an alert
// @Tags Warnings
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body dto.AlertActionRequest false "Notes"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.transition(c, h.service.Acknowledge)
}

// Resolve godoc
// @Summary Resolve an alert
// @Tags Warnings
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body dto.AlertActionRequest true "Resolution notes"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *gin.Context) {
	h.transition(c, h.service.Resolve)
}

// Dismiss godoc
// @Summary Dismiss an alert
// @Tags Warnings
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body dto.AlertActionRequest false "Notes"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts/{id}/dismiss [post]
func (h *AlertHandler) Dismiss(c *gin.Context) {
	h.transition(c, h.service.Dismiss)
}

func (h *AlertHandler) transition(c *gin.Context, apply alertTransitionFunc) {
	var req dto.AlertActionRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alert action payload"))
			return
		}
	}
	record, err := apply(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Batch godoc
// @Summary Apply one action to many alerts
// @Tags Warnings
// @Accept json
// @Produce json
// @Param payload body dto.BatchAlertRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /warnings/alerts/batch [post]
func (h *AlertHandler) Batch(c *gin.Context) {
	var req dto.BatchAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxBatchSize {
		response.Error(c, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"),
			appErrors.FieldDetail{Field: "ids", Message: fmt.Sprintf("must hold between 1 and %d ids", maxBatchSize)}))
		return
	}
	action := models.AlertAction(strings.ToLower(req.Action))
	if !action.Valid() {
		response.Error(c, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"),
			appErrors.FieldDetail{Field: "action", Message: "must be one of acknowledge, resolve, dismiss"}))
		return
	}
	result, err := h.service.BatchProcess(c.Request.Context(), req.IDs, action, actorFromContext(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
