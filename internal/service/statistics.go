package service

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

const (
	topRuleLimit   = 5
	maxDenseDays   = 366
	trendDayLayout = "2006-01-02"
)

// Summarize aggregates alerts into a statistics snapshot. Records created outside rng are ignored.
// The trend is bucketed by UTC calendar day and zero-filled when the range spans at most a leap year.
func Summarize(records []models.AlertRecord, rng models.TimeRange) models.StatisticsSnapshot {
	snapshot := models.StatisticsSnapshot{
		BySeverity: make(map[models.Severity]int, len(models.Severities)),
		ByStatus:   make(map[models.AlertStatus]int, len(models.AlertStatuses)),
		Trend:      []models.TrendPoint{},
		TopRules:   []models.RuleRanking{},
		Range:      rng,
	}
	for _, sev := range models.Severities {
		snapshot.BySeverity[sev] = 0
	}
	for _, st := range models.AlertStatuses {
		snapshot.ByStatus[st] = 0
	}

	days := make(map[string]*models.TrendPoint)
	rules := make(map[string]*models.RuleRanking)
	for _, r := range records {
		if !rng.Contains(r.CreatedAt) {
			continue
		}
		snapshot.Summary.Total++
		snapshot.BySeverity[r.Severity]++
		snapshot.ByStatus[r.Status]++
		switch r.Status {
		case models.AlertStatusActive:
			snapshot.Summary.Active++
		case models.AlertStatusResolved:
			snapshot.Summary.Resolved++
		}
		if r.Severity == models.SeverityCritical {
			snapshot.Summary.Critical++
		}

		day := r.CreatedAt.UTC().Format(trendDayLayout)
		point, ok := days[day]
		if !ok {
			point = newTrendPoint(day)
			days[day] = point
		}
		point.Count++
		point.BySeverity[r.Severity]++

		ranking, ok := rules[r.RuleID]
		if !ok {
			ranking = &models.RuleRanking{RuleID: r.RuleID, RuleName: r.RuleName}
			rules[r.RuleID] = ranking
		}
		ranking.Count++
	}

	snapshot.Trend = buildTrend(days, rng)
	snapshot.TopRules = topRules(rules, topRuleLimit)
	return snapshot
}

func newTrendPoint(day string) *models.TrendPoint {
	point := &models.TrendPoint{Date: day, BySeverity: make(map[models.Severity]int, len(models.Severities))}
	for _, sev := range models.Severities {
		point.BySeverity[sev] = 0
	}
	return point
}

func buildTrend(days map[string]*models.TrendPoint, rng models.TimeRange) []models.TrendPoint {
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.To.Before(rng.From) {
		start := truncateDay(rng.From)
		end := truncateDay(rng.To)
		if int(end.Sub(start).Hours()/24)+1 <= maxDenseDays {
			trend := make([]models.TrendPoint, 0, int(end.Sub(start).Hours()/24)+1)
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				key := d.Format(trendDayLayout)
				if point, ok := days[key]; ok {
					trend = append(trend, *point)
					continue
				}
				trend = append(trend, *newTrendPoint(key))
			}
			return trend
		}
	}

	trend := make([]models.TrendPoint, 0, len(days))
	for _, point := range days {
		trend = append(trend, *point)
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return trend
}

func topRules(rules map[string]*models.RuleRanking, limit int) []models.RuleRanking {
	ranked := make([]models.RuleRanking, 0, len(rules))
	for _, r := range rules {
		ranked = append(ranked, *r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].RuleID < ranked[j].RuleID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
