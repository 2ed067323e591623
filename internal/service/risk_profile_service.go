package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

const (
	recentAlertWindow   = 30 * 24 * time.Hour
	monitoringWindow    = 7 * 24 * time.Hour
	frequentAlertCount  = 5
	lowResolutionRate   = 50.0
	interventionScore   = 0.8
	monitoringThreshold = 2
)

type profileAlertStore interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.AlertRecord, error)
}

// StudentDirectory resolves students for detection scopes and profiles.
type StudentDirectory interface {
	ResolveScope(ctx context.Context, scope models.TargetScope) ([]models.StudentRef, error)
	FindByID(ctx context.Context, id string) (*models.StudentRef, error)
}

type riskFactorRule struct {
	factor      string
	score       float64
	description string
	applies     func(h models.AlertHistory) bool
}

var riskFactorTable = []riskFactorRule{
	{
		factor:      "frequent_alerts",
		score:       0.8,
		description: fmt.Sprintf("student has received %d or more alerts", frequentAlertCount),
		applies: func(h models.AlertHistory) bool {
			return h.Total >= frequentAlertCount
		},
	},
	{
		factor:      "critical_alert",
		score:       0.9,
		description: "student has received a critical alert",
		applies: func(h models.AlertHistory) bool {
			return h.SeverityDistribution[models.SeverityCritical] > 0
		},
	},
	{
		factor:      "low_resolution_rate",
		score:       0.7,
		description: "less than half of the student's alerts were resolved",
		applies: func(h models.AlertHistory) bool {
			return h.Total > 0 && h.ResolutionRate < lowResolutionRate
		},
	},
}

func profileCacheKey(studentID string) CacheKey {
	return NewCacheKey(CacheResourceProfile, "student", studentID)
}

// RiskProfileService builds read-only risk profiles from a student's alerts.
type RiskProfileService struct {
	alerts   profileAlertStore
	students StudentDirectory
	cache    *CacheService
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewRiskProfileService constructs the service.
func NewRiskProfileService(alerts profileAlertStore, students StudentDirectory, cache *CacheService, logger *zap.Logger, timeout time.Duration) *RiskProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RiskProfileService{alerts: alerts, students: students, cache: cache, logger: logger, timeout: timeout, now: time.Now}
}

// Build composes the student's profile. The bool result reports a cache hit.
func (s *RiskProfileService) Build(ctx context.Context, studentID string) (*models.RiskProfile, bool, error) {
	key := profileCacheKey(studentID)
	var cached models.RiskProfile
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	student, err := s.students.FindByID(loadCtx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, storeFailure(err, "failed to load student")
	}
	records, err := s.alerts.ListByStudent(loadCtx, studentID)
	if err != nil {
		return nil, false, storeFailure(err, "failed to load student alerts")
	}

	profile := BuildProfile(studentID, records, s.now().UTC())
	profile.StudentName = student.FullName
	_ = s.cache.Set(ctx, key, profile, 0)
	return &profile, false, nil
}

// BuildProfile derives a profile from every alert the student has received.
func BuildProfile(studentID string, records []models.AlertRecord, now time.Time) models.RiskProfile {
	history := models.AlertHistory{SeverityDistribution: make(map[models.Severity]int, len(models.Severities))}
	for _, sev := range models.Severities {
		history.SeverityDistribution[sev] = 0
	}

	current := []models.AlertRecord{}
	resolved, lastWeek := 0, 0
	for _, r := range records {
		history.Total++
		history.SeverityDistribution[r.Severity]++
		age := now.Sub(r.CreatedAt)
		if age <= recentAlertWindow {
			history.Recent++
		}
		if age <= monitoringWindow {
			lastWeek++
		}
		switch r.Status {
		case models.AlertStatusActive:
			current = append(current, r)
		case models.AlertStatusResolved:
			resolved++
		}
	}
	if history.Total > 0 {
		history.ResolutionRate = math.Round(float64(resolved)/float64(history.Total)*10000) / 100
	}

	factors := []models.RiskFactor{}
	for _, rule := range riskFactorTable {
		if rule.applies(history) {
			factors = append(factors, models.RiskFactor{Factor: rule.factor, Score: rule.score, Description: rule.description})
		}
	}

	return models.RiskProfile{
		StudentID:          studentID,
		History:            history,
		CurrentAlerts:      current,
		RiskFactors:        factors,
		RecommendedActions: recommendActions(len(current), factors, lastWeek),
		GeneratedAt:        now,
	}
}

func recommendActions(active int, factors []models.RiskFactor, lastWeek int) []models.RecommendedAction {
	actions := []models.RecommendedAction{}
	if active > 0 {
		actions = append(actions, models.RecommendedAction{
			Action:      "address active alerts",
			Priority:    models.PriorityHigh,
			Description: fmt.Sprintf("%d alert(s) are still open", active),
		})
	}
	for _, f := range factors {
		if f.Score >= interventionScore {
			actions = append(actions, models.RecommendedAction{
				Action:      "create individual intervention plan",
				Priority:    models.PriorityHigh,
				Description: "risk factors indicate the student needs a personal plan",
			})
			break
		}
	}
	if lastWeek >= monitoringThreshold {
		actions = append(actions, models.RecommendedAction{
			Action:      "increase monitoring frequency",
			Priority:    models.PriorityMedium,
			Description: fmt.Sprintf("%d alerts in the last 7 days", lastWeek),
		})
	}
	return actions
}
