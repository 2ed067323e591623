package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

type ruleStore interface {
	List(ctx context.Context, filter models.RuleFilter) ([]models.WarningRule, error)
	ListActive(ctx context.Context) ([]models.WarningRule, error)
	GetByID(ctx context.Context, id string) (*models.WarningRule, error)
	FindByName(ctx context.Context, name string) (*models.WarningRule, error)
	Create(ctx context.Context, rule *models.WarningRule) error
	Update(ctx context.Context, rule *models.WarningRule) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

var activeRulesKey = NewCacheKey(CacheResourceRules, "scope", "active")

// RuleService validates and manages warning rules.
type RuleService struct {
	repo      ruleStore
	validator *validator.Validate
	cache     *CacheService
	logger    *zap.Logger
}

// NewRuleService constructs the service and registers the rule validation tags.
func NewRuleService(repo ruleStore, validate *validator.Validate, cache *CacheService, logger *zap.Logger) *RuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterRuleValidations(validate)
	return &RuleService{repo: repo, validator: validate, cache: cache, logger: logger}
}

// RegisterRuleValidations installs warning_metric, warning_operator and warning_severity.
func RegisterRuleValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("warning_metric", func(fl validator.FieldLevel) bool {
		return models.IsKnownMetric(fl.Field().String())
	})
	_ = validate.RegisterValidation("warning_operator", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseOperator(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("warning_severity", func(fl validator.FieldLevel) bool {
		return models.Severity(fl.Field().String()).Valid()
	})
}

// List returns rules matching the query.
func (s *RuleService) List(ctx context.Context, query dto.RuleListQuery) ([]models.WarningRule, error) {
	filter := models.RuleFilter{IsActive: query.IsActive, IsSystem: query.IsSystem, CreatedBy: query.CreatedBy, Search: query.Search}
	for _, raw := range query.Severities {
		sev := models.Severity(strings.ToLower(raw))
		if !sev.Valid() {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid severity filter"),
				appErrors.FieldDetail{Field: "severity", Message: fmt.Sprintf("unknown severity %q", raw)})
		}
		filter.Severities = append(filter.Severities, sev)
	}
	rules, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeFailure(err, "failed to list warning rules")
	}
	return rules, nil
}

// Get returns one rule.
func (s *RuleService) Get(ctx context.Context, id string) (*models.WarningRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warning rule not found")
		}
		return nil, storeFailure(err, "failed to load warning rule")
	}
	return rule, nil
}

// ActiveRules returns the rules detection evaluates, memoised until the next rule write.
func (s *RuleService) ActiveRules(ctx context.Context) ([]models.WarningRule, error) {
	var cached []models.WarningRule
	if hit, _ := s.cache.Get(ctx, activeRulesKey, &cached); hit {
		return cached, nil
	}
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, storeFailure(err, "failed to load active warning rules")
	}
	_ = s.cache.Set(ctx, activeRulesKey, rules, 0)
	return rules, nil
}

// Create validates and stores a new rule.
func (s *RuleService) Create(ctx context.Context, req dto.CreateRuleRequest, actor string) (*models.WarningRule, error) {
	rule, err := s.buildRule(req)
	if err != nil {
		return nil, err
	}
	if actor != "" {
		rule.CreatedBy = &actor
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, storeFailure(err, "failed to create warning rule")
	}
	s.invalidate(ctx)
	s.logger.Sugar().Infow("warning rule created", "rule_id", rule.ID, "name", rule.Name, "actor", actor)
	return rule, nil
}

// Update replaces a rule definition. Open alerts keep the severity they were raised with.
// System rules may be tuned but keep their name, which seeding matches on.
func (s *RuleService) Update(ctx context.Context, id string, req dto.UpdateRuleRequest) (*models.WarningRule, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := s.buildRule(req)
	if err != nil {
		return nil, err
	}
	if existing.IsSystem && rule.Name != existing.Name {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid warning rule"),
			appErrors.FieldDetail{Field: "name", Message: "cannot be changed on a system rule"})
	}
	rule.ID = existing.ID
	rule.IsSystem = existing.IsSystem
	rule.CreatedBy = existing.CreatedBy
	rule.CreatedAt = existing.CreatedAt
	if req.IsActive == nil {
		rule.IsActive = existing.IsActive
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warning rule not found")
		}
		return nil, storeFailure(err, "failed to update warning rule")
	}
	s.invalidate(ctx)
	return rule, nil
}

// SetActive enables or disables a rule, system rules included.
func (s *RuleService) SetActive(ctx context.Context, id string, active bool) (*models.WarningRule, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warning rule not found")
		}
		return nil, storeFailure(err, "failed to toggle warning rule")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Delete removes a rule. System rules are protected.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rule.IsSystem {
		return appErrors.Clone(appErrors.ErrForbidden, "system rules cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "warning rule not found")
		}
		return storeFailure(err, "failed to delete warning rule")
	}
	s.invalidate(ctx)
	return nil
}

// SeedSystemRules creates the built-in rules listed in a YAML file that do not exist yet,
// matched by name. Existing rules are left as administrators last saved them. A missing file is
// not an error. The count is the number of rules created.
func (s *RuleService) SeedSystemRules(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("system rule file not found, skipping seed", zap.String("path", path))
			return 0, nil
		}
		return 0, fmt.Errorf("read system rules: %w", err)
	}
	return s.seed(ctx, raw)
}

func (s *RuleService) seed(ctx context.Context, raw []byte) (int, error) {
	var file dto.SystemRuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid system rule file")
	}

	seeded := 0
	for i, req := range file.Rules {
		rule, err := s.buildRule(req)
		if err != nil {
			return seeded, fmt.Errorf("system rule %d (%s): %w", i, req.Name, err)
		}
		rule.IsSystem = true

		_, err = s.repo.FindByName(ctx, rule.Name)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return seeded, storeFailure(err, "failed to look up system rule")
		}
		if err := s.repo.Create(ctx, rule); err != nil {
			return seeded, storeFailure(err, "failed to seed system rule")
		}
		seeded++
	}
	if seeded > 0 {
		s.invalidate(ctx)
	}
	s.logger.Sugar().Infow("system warning rules seeded", "count", seeded)
	return seeded, nil
}

// buildRule validates the request and normalises operator aliases to their symbol form.
func (s *RuleService) buildRule(req dto.CreateRuleRequest) (*models.WarningRule, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Severity = strings.ToLower(strings.TrimSpace(req.Severity))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailure(err, "invalid warning rule")
	}

	conditions := make(models.Conditions, 0, len(req.Conditions))
	for i, c := range req.Conditions {
		if math.IsNaN(*c.Value) || math.IsInf(*c.Value, 0) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid warning rule"),
				appErrors.FieldDetail{Field: fmt.Sprintf("conditions[%d].value", i), Message: "must be a finite number"})
		}
		op, _ := models.ParseOperator(c.Operator)
		conditions = append(conditions, models.Condition{
			Metric:    c.Metric,
			Operator:  op,
			Value:     *c.Value,
			Timeframe: c.Timeframe,
		})
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.WarningRule{
		Name:        req.Name,
		Description: req.Description,
		Conditions:  conditions,
		Severity:    models.Severity(req.Severity),
		IsActive:    active,
	}, nil
}

func (s *RuleService) invalidate(ctx context.Context) {
	_ = s.cache.InvalidateResource(ctx, CacheResourceRules)
}
