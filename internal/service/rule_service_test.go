package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

type memRuleStore struct {
	mu          sync.Mutex
	rules       map[string]*models.WarningRule
	seq         int
	activeCalls int
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{rules: make(map[string]*models.WarningRule)}
}

func (s *memRuleStore) List(ctx context.Context, filter models.RuleFilter) ([]models.WarningRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.WarningRule{}
	for _, r := range s.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRuleStore) ListActive(ctx context.Context) ([]models.WarningRule, error) {
	all, _ := s.List(ctx, models.RuleFilter{})
	s.mu.Lock()
	s.activeCalls++
	s.mu.Unlock()
	out := []models.WarningRule{}
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRuleStore) GetByID(ctx context.Context, id string) (*models.WarningRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (s *memRuleStore) FindByName(ctx context.Context, name string) (*models.WarningRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memRuleStore) Create(ctx context.Context, rule *models.WarningRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Name == rule.Name {
			return appErrors.Clone(appErrors.ErrConflict, "warning rule name already exists")
		}
	}
	s.seq++
	rule.ID = fmt.Sprintf("rule-%d", s.seq)
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *memRuleStore) Update(ctx context.Context, rule *models.WarningRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *memRuleStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.IsActive = active
	return nil
}

func (s *memRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rules, id)
	return nil
}

func validRuleRequest(name string) dto.CreateRuleRequest {
	return dto.CreateRuleRequest{
		Name:     name,
		Severity: "High",
		Conditions: []dto.ConditionRequest{
			{Metric: "avg_score", Operator: "lt", Value: floatPtr(60)},
		},
	}
}

func TestRuleServiceCreateNormalisesRule(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)

	rule, err := svc.Create(context.Background(), validRuleRequest("  Low scores "), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Low scores", rule.Name)
	assert.Equal(t, models.SeverityHigh, rule.Severity)
	assert.True(t, rule.IsActive)
	assert.False(t, rule.IsSystem)
	require.Len(t, rule.Conditions, 1)
	assert.Equal(t, models.OpLessThan, rule.Conditions[0].Operator)
	assert.Equal(t, "avg_score", rule.Conditions[0].Metric)
	assert.Equal(t, "admin-1", *rule.CreatedBy)
}

func TestRuleServiceCreateReportsInvalidFields(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	req := dto.CreateRuleRequest{
		Name:     "Broken",
		Severity: "urgent",
		Conditions: []dto.ConditionRequest{
			{Metric: "shoe_size", Operator: "~", Value: floatPtr(1)},
		},
	}

	_, err := svc.Create(context.Background(), req, "admin-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	fields := make([]string, 0, len(appErr.Details))
	for _, d := range appErr.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"severity", "conditions[0].metric", "conditions[0].operator"}, fields)
}

func TestRuleServiceCreateRequiresConditions(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	req := validRuleRequest("Empty")
	req.Conditions = nil

	_, err := svc.Create(context.Background(), req, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRuleServiceDuplicateNameConflicts(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	_, err := svc.Create(context.Background(), validRuleRequest("Low scores"), "")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validRuleRequest("Low scores"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestRuleServiceSystemRulesCannotBeDeleted(t *testing.T) {
	store := newMemRuleStore()
	store.rules["sys-1"] = &models.WarningRule{ID: "sys-1", Name: "Poor attendance", Severity: models.SeverityHigh, IsActive: true, IsSystem: true}
	svc := NewRuleService(store, nil, nil, nil)
	ctx := context.Background()

	err := svc.Delete(ctx, "sys-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	rule, err := svc.SetActive(ctx, "sys-1", false)
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
}

func TestRuleServiceUpdateTunesSystemRule(t *testing.T) {
	store := newMemRuleStore()
	store.rules["sys-1"] = &models.WarningRule{ID: "sys-1", Name: "Poor attendance", Severity: models.SeverityHigh, IsActive: true, IsSystem: true}
	svc := NewRuleService(store, nil, nil, nil)
	ctx := context.Background()

	req := validRuleRequest("Poor attendance")
	req.Severity = "critical"
	updated, err := svc.Update(ctx, "sys-1", req)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, updated.Severity)
	assert.True(t, updated.IsSystem)
	assert.Equal(t, models.SeverityCritical, store.rules["sys-1"].Severity)

	_, err = svc.Update(ctx, "sys-1", validRuleRequest("Renamed"))
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "name", appErr.Details[0].Field)
}

func TestRuleServiceRejectsNonFiniteThreshold(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	for name, value := range map[string]float64{"nan": math.NaN(), "inf": math.Inf(1), "-inf": math.Inf(-1)} {
		t.Run(name, func(t *testing.T) {
			req := validRuleRequest("Low scores")
			req.Conditions[0].Value = floatPtr(value)
			_, err := svc.Create(context.Background(), req, "admin-1")
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "conditions[0].value", appErr.Details[0].Field)
		})
	}

	_, err := svc.seed(context.Background(), []byte("rules:\n  - name: Broken\n    severity: high\n    conditions:\n      - metric: average_score\n        operator: lt\n        value: .nan\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRuleServiceUpdateKeepsIdentity(t *testing.T) {
	store := newMemRuleStore()
	svc := NewRuleService(store, nil, nil, nil)
	ctx := context.Background()
	created, err := svc.Create(ctx, validRuleRequest("Low scores"), "admin-1")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, created.ID, false)
	require.NoError(t, err)

	req := validRuleRequest("Very low scores")
	req.Severity = "critical"
	updated, err := svc.Update(ctx, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, models.SeverityCritical, updated.Severity)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "admin-1", *updated.CreatedBy)
}

func TestRuleServiceMissingRule(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = svc.SetActive(ctx, "nope", true)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, "nope"), appErrors.ErrNotFound))
}

func TestRuleServiceActiveRulesCachedUntilWrite(t *testing.T) {
	store := newMemRuleStore()
	cache := NewCacheService(newMemCache(), nil, 0, nil, true)
	svc := NewRuleService(store, nil, cache, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, validRuleRequest("Low scores"), "")
	require.NoError(t, err)

	rules, err := svc.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	_, err = svc.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.activeCalls)

	second, err := svc.Create(ctx, validRuleRequest("Attendance"), "")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, second.ID, false)
	require.NoError(t, err)
	rules, err = svc.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, 2, store.activeCalls)
}

const systemRulesYAML = `
rules:
  - name: Low academic performance
    severity: high
    conditions:
      - metric: average_score
        operator: "<"
        value: 60
  - name: Poor attendance
    severity: high
    conditions:
      - metric: attendance_rate
        operator: lt
        value: 80
        timeframe: 30
`

func TestRuleServiceSeedCreatesMissingRulesOnly(t *testing.T) {
	store := newMemRuleStore()
	svc := NewRuleService(store, nil, nil, nil)
	ctx := context.Background()

	seeded, err := svc.seed(ctx, []byte(systemRulesYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)

	existing, err := store.FindByName(ctx, "Poor attendance")
	require.NoError(t, err)
	assert.True(t, existing.IsSystem)
	assert.Equal(t, 30, *existing.Conditions[0].Timeframe)
	require.NoError(t, store.SetActive(ctx, existing.ID, false))
	req := validRuleRequest("Poor attendance")
	req.Severity = "critical"
	_, err = svc.Update(ctx, existing.ID, req)
	require.NoError(t, err)

	seeded, err = svc.seed(ctx, []byte(systemRulesYAML))
	require.NoError(t, err)
	assert.Zero(t, seeded)
	assert.Len(t, store.rules, 2)

	again, err := store.FindByName(ctx, "Poor attendance")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, again.ID)
	assert.False(t, again.IsActive)
	assert.Equal(t, models.SeverityCritical, again.Severity)
}

func TestRuleServiceSeedRejectsInvalidRule(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	_, err := svc.seed(context.Background(), []byte("rules:\n  - name: Bad\n    severity: extreme\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRuleServiceSeedSystemRulesFromFile(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	ctx := context.Background()

	seeded, err := svc.SeedSystemRules(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Zero(t, seeded)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(systemRulesYAML), 0o600))
	seeded, err = svc.SeedSystemRules(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)
}

func TestRuleServiceListRejectsUnknownSeverity(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil, nil)
	_, err := svc.List(context.Background(), dto.RuleListQuery{Severities: []string{"severe"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
