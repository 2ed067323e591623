package dto

import "time"

// ConditionRequest is one rule condition as submitted by clients.
type ConditionRequest struct {
	Metric    string   `json:"metric" yaml:"metric" validate:"required,warning_metric"`
	Operator  string   `json:"operator" yaml:"operator" validate:"required,warning_operator"`
	Value     *float64 `json:"value" yaml:"value" validate:"required"`
	Timeframe *int     `json:"timeframe,omitempty" yaml:"timeframe,omitempty" validate:"omitempty,min=1,max=365"`
}

// CreateRuleRequest describes the payload for creating a warning rule.
type CreateRuleRequest struct {
	Name        string             `json:"name" yaml:"name" validate:"required,max=200"`
	Description string             `json:"description" yaml:"description" validate:"max=1000"`
	Conditions  []ConditionRequest `json:"conditions" yaml:"conditions" validate:"required,min=1,dive"`
	Severity    string             `json:"severity" yaml:"severity" validate:"required,warning_severity"`
	IsActive    *bool              `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

// UpdateRuleRequest replaces the editable fields of a rule.
type UpdateRuleRequest = CreateRuleRequest

// SetRuleActiveRequest toggles a rule.
type SetRuleActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// RuleListQuery holds rule list filters.
type RuleListQuery struct {
	IsActive   *bool
	IsSystem   *bool
	Severities []string
	CreatedBy  string
	Search     string
}

// SystemRuleFile is the YAML document of built-in rules.
type SystemRuleFile struct {
	Rules []CreateRuleRequest `yaml:"rules" validate:"dive"`
}

// DetectRequest starts a detection run.
type DetectRequest struct {
	Scope string   `json:"scope" validate:"required,oneof=student class all"`
	IDs   []string `json:"ids"`
	Async bool     `json:"async"`
}

// AlertActionRequest carries operator notes for a lifecycle call.
type AlertActionRequest struct {
	Notes *string `json:"notes"`
}

// BatchAlertRequest applies one action to many alerts.
type BatchAlertRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
	Action string   `json:"action" validate:"required,oneof=acknowledge resolve dismiss"`
	Notes  *string  `json:"notes"`
}

// AlertListQuery holds alert list filters.
type AlertListQuery struct {
	StudentIDs  []string
	ClassIDs    []string
	RuleID      string
	Severities  []string
	Statuses    []string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
	SortOrder   string
}

// StatisticsQuery selects the statistics window and scope.
type StatisticsQuery struct {
	From       *time.Time
	To         *time.Time
	ClassIDs   []string
	StudentIDs []string
}

// DetectionRunQuery holds run list filters.
type DetectionRunQuery struct {
	Status   string
	Trigger  string
	Page     int
	PageSize int
}
