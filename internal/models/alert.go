package models

import "time"

// AlertStatus is the lifecycle state of an alert record.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// AlertStatuses lists every lifecycle state.
var AlertStatuses = []AlertStatus{AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusDismissed}

// Valid reports whether the status is known.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusDismissed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusDismissed
}

// AlertAction is a lifecycle operation applied by an operator.
type AlertAction string

const (
	AlertActionAcknowledge AlertAction = "acknowledge"
	AlertActionResolve     AlertAction = "resolve"
	AlertActionDismiss     AlertAction = "dismiss"
)

// Valid reports whether the action is known.
func (a AlertAction) Valid() bool {
	switch a {
	case AlertActionAcknowledge, AlertActionResolve, AlertActionDismiss:
		return true
	default:
		return false
	}
}

// Target returns the status the action moves an alert into.
func (a AlertAction) Target() AlertStatus {
	switch a {
	case AlertActionAcknowledge:
		return AlertStatusAcknowledged
	case AlertActionResolve:
		return AlertStatusResolved
	case AlertActionDismiss:
		return AlertStatusDismissed
	default:
		return ""
	}
}

// Sources lists the states from which the action may be applied.
func (a AlertAction) Sources() []AlertStatus {
	switch a {
	case AlertActionAcknowledge:
		return []AlertStatus{AlertStatusActive}
	case AlertActionResolve, AlertActionDismiss:
		return []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}
	default:
		return nil
	}
}

// TriggerData captures why an alert fired.
type TriggerData struct {
	Metric      string   `json:"metric"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Operator    Operator `json:"operator"`
	Timeframe   int      `json:"timeframe"`
	Description string   `json:"description"`
}

// AlertRecord is the persisted result of a rule triggering for a student.
type AlertRecord struct {
	ID             string      `db:"id" json:"id"`
	StudentID      string      `db:"student_id" json:"student_id"`
	StudentName    string      `db:"student_name" json:"student_name"`
	ClassID        *string     `db:"class_id" json:"class_id,omitempty"`
	ClassName      *string     `db:"class_name" json:"class_name,omitempty"`
	RuleID         string      `db:"rule_id" json:"rule_id"`
	RuleName       string      `db:"rule_name" json:"rule_name"`
	Severity       Severity    `db:"severity" json:"severity"`
	TriggerData    TriggerData `db:"-" json:"trigger_data"`
	Status         AlertStatus `db:"status" json:"status"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
	AcknowledgedAt *time.Time  `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     *string     `db:"resolved_by" json:"resolved_by,omitempty"`
}

// AlertTransition describes a conditional status change.
type AlertTransition struct {
	ID     string
	Action AlertAction
	Actor  string
	Notes  *string
	At     time.Time
}

// AlertFilter scopes alert listing.
type AlertFilter struct {
	StudentIDs  []string
	ClassIDs    []string
	RuleID      string
	Severities  []Severity
	Statuses    []AlertStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
	SortOrder   string
}

// BatchResult tallies a batch lifecycle operation.
type BatchResult struct {
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []BatchError `json:"errors"`
}

// BatchError names the alert that failed within a batch.
type BatchError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
