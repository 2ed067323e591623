package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
	"github.com/noah-isme/sma-warning-api/pkg/response"
)

type ruleService interface {
	List(ctx context.Context, query dto.RuleListQuery) ([]models.WarningRule, error)
	Get(ctx context.Context, id string) (*models.WarningRule, error)
	Create(ctx context.Context, req dto.CreateRuleRequest, actor string) (*models.WarningRule, error)
	Update(ctx context.Context, id string, req dto.UpdateRuleRequest) (*models.WarningRule, error)
	SetActive(ctx context.Context, id string, active bool) (*models.WarningRule, error)
	Delete(ctx context.Context, id string) error
}

// RuleHandler exposes warning rule management.
type RuleHandler struct {
	service ruleService
}

// NewRuleHandler builds a new handler.
func NewRuleHandler(service ruleService) *RuleHandler {
	return &RuleHandler{service: service}
}

// List godoc
// @Summary List warning rules
// @Tags Warnings
// @Produce json
// @Param is_active query bool false "Filter by active flag"
// @Param is_system query bool false "Filter by system flag"
// @Param severity query []string false "Severities" collectionFormat(csv)
// @Param created_by query string false "Creator id"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /warnings/rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	isActive, err := queryBool(c, "is_active")
	if err != nil {
		response.Error(c, err)
		return
	}
	isSystem, err := queryBool(c, "is_system")
	if err != nil {
		response.Error(c, err)
		return
	}
	rules, err := h.service.List(c.Request.Context(), dto.RuleListQuery{
		IsActive:   isActive,
		IsSystem:   isSystem,
		Severities: queryList(c, "severity"),
		CreatedBy:  c.Query("created_by"),
		Search:     c.Query("search"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// Get godoc
// @Summary Get warning rule
// @Tags Warnings
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} response.Envelope
// @Router /warnings/rules/{id} [get]
func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Create godoc
// @Summary Create warning rule
// @Tags Warnings
// @Accept json
// @Produce json
// @Param payload body dto.CreateRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /warnings/rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}
	rule, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// Update godoc
// @Summary Update warning rule
// @Tags Warnings
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body dto.CreateRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /warnings/rules/{id} [put]
func (h *RuleHandler) Update(c *gin.Context) {
	var req dto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}
	rule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// SetActive godoc
// @Summary Enable or disable a warning rule
// @Tags Warnings
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body dto.SetRuleActiveRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Router /warnings/rules/{id}/active [patch]
func (h *RuleHandler) SetActive(c *gin.Context) {
	var req dto.SetRuleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		response.Error(c, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid active payload"),
			appErrors.FieldDetail{Field: "is_active", Message: "is required"}))
		return
	}
	rule, err := h.service.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Delete godoc
// @Summary Delete warning rule
// @Tags Warnings
// @Param id path string true "Rule ID"
// @Success 204
// @Router /warnings/rules/{id} [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
