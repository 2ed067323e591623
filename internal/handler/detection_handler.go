package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	"github.com/noah-isme/sma-warning-api/internal/service"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/response"
)

type detectionService interface {
	Run(ctx context.Context, scope models.TargetScope, trigger models.RunTrigger) (*models.DetectionResult, error)
	Runs(ctx context.Context, query dto.DetectionRunQuery) ([]models.DetectionRun, *models.Pagination, error)
}

type detectionQueue interface {
	Enqueue(scope models.TargetScope, trigger models.RunTrigger) (string, error)
}

// DetectionHandler starts detection runs and lists the run log.
type DetectionHandler struct {
	detection detectionService
	queue     detectionQueue
}

// NewDetectionHandler builds a new handler. queue may be nil when background runs are disabled.
func NewDetectionHandler(detection detectionService, queue detectionQueue) *DetectionHandler {
	return &DetectionHandler{detection: detection, queue: queue}
}

// Detect godoc
// @Summary Run risk detection
// @Description Evaluates the active rules for the scope. With async=true the run is queued and 202 is returned.
// @Tags Warnings
// @Accept json
// @Produce json
// @Param async query bool false "Queue the run instead of waiting"
// @Param payload body dto.DetectRequest true "Detection scope"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /warnings/detect [post]
func (h *DetectionHandler) Detect(c *gin.Context) {
	var req dto.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid detection payload"))
		return
	}
	if raw := c.Query("async"); raw != "" {
		async, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid async parameter"))
			return
		}
		req.Async = async
	}
	scope, err := service.ParseScope(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.Async {
		if h.queue == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "background detection is disabled"))
			return
		}
		jobID, err := h.queue.Enqueue(scope, models.RunTriggerAPI)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"job_id": jobID, "scope": scope})
		return
	}

	result, err := h.detection.Run(c.Request.Context(), scope, models.RunTriggerManual)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Runs godoc
// @Summary List detection runs
// @Tags Warnings
// @Produce json
// @Param status query string false "running, completed, failed or cancelled"
// @Param trigger query string false "manual, scheduled or api"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /warnings/runs [get]
func (h *DetectionHandler) Runs(c *gin.Context) {
	runs, pagination, err := h.detection.Runs(c.Request.Context(), dto.DetectionRunQuery{
		Status:   c.Query("status"),
		Trigger:  c.Query("trigger"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}
