package models

import "time"

// AlertHistory summarises every alert a student has received.
type AlertHistory struct {
	Total                int              `json:"total"`
	Recent               int              `json:"recent"`
	SeverityDistribution map[Severity]int `json:"severity_distribution"`
	ResolutionRate       float64          `json:"resolution_rate"`
}

// RiskFactor is a derived flag over a student's alerts.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// ActionPriority ranks recommended actions.
type ActionPriority string

const (
	PriorityHigh   ActionPriority = "high"
	PriorityMedium ActionPriority = "medium"
	PriorityLow    ActionPriority = "low"
)

// RecommendedAction is a deterministic next step for staff.
type RecommendedAction struct {
	Action      string         `json:"action"`
	Priority    ActionPriority `json:"priority"`
	Description string         `json:"description"`
}

// RiskProfile composes one student's alert history and derived risk.
type RiskProfile struct {
	StudentID          string              `json:"student_id"`
	StudentName        string              `json:"student_name,omitempty"`
	History            AlertHistory        `json:"history"`
	CurrentAlerts      []AlertRecord       `json:"current_alerts"`
	RiskFactors        []RiskFactor        `json:"risk_factors"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
	GeneratedAt        time.Time           `json:"generated_at"`
}
