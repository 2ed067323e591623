package models

import "time"

// TimeRange bounds statistics by alert creation time. Zero values are open ends.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// EndOfDay returns the last instant of t's UTC calendar day at the microsecond precision
// Postgres stores, so an inclusive upper bound covers the whole day.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Microsecond)
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// StatisticsSummary holds headline counts.
type StatisticsSummary struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
	Critical int `json:"critical"`
}

// TrendPoint is the per-day alert count.
type TrendPoint struct {
	Date       string           `json:"date"`
	Count      int              `json:"count"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// RuleRanking counts triggers per rule.
type RuleRanking struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}

// StatisticsSnapshot is the aggregate view over a set of alerts.
type StatisticsSnapshot struct {
	Summary    StatisticsSummary   `json:"summary"`
	BySeverity map[Severity]int    `json:"by_severity"`
	ByStatus   map[AlertStatus]int `json:"by_status"`
	Trend      []TrendPoint        `json:"trend"`
	TopRules   []RuleRanking       `json:"top_rules"`
	Range      TimeRange           `json:"range"`
}

// StatisticsScope narrows statistics to classes or students.
type StatisticsScope struct {
	ClassIDs   []string `json:"class_ids,omitempty"`
	StudentIDs []string `json:"student_ids,omitempty"`
}
