package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from least to most urgent.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Operator is a threshold comparison.
type Operator string

const (
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

var operatorAliases = map[string]Operator{
	"<": OpLessThan, "lt": OpLessThan,
	"<=": OpLessOrEqual, "lte": OpLessOrEqual,
	">": OpGreaterThan, "gt": OpGreaterThan,
	">=": OpGreaterOrEqual, "gte": OpGreaterOrEqual,
	"==": OpEqual, "eq": OpEqual,
	"!=": OpNotEqual, "neq": OpNotEqual,
}

// ParseOperator accepts both the symbol and the word form (lt, lte, gt, gte, eq, neq).
func ParseOperator(raw string) (Operator, bool) {
	op, ok := operatorAliases[raw]
	return op, ok
}

// Evaluate compares value against threshold. Unknown operators never match.
func (o Operator) Evaluate(value, threshold float64) bool {
	switch o {
	case OpLessThan:
		return value < threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpGreaterThan:
		return value > threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		return false
	}
}

// DefaultTimeframeDays is the lookback applied when a condition omits its timeframe.
const DefaultTimeframeDays = 30

// Condition is one metric/operator/threshold/window clause of a rule.
type Condition struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Value     float64  `json:"value"`
	Timeframe *int     `json:"timeframe,omitempty"`
}

// WindowDays returns the condition lookback in days.
func (c Condition) WindowDays() int {
	if c.Timeframe == nil || *c.Timeframe <= 0 {
		return DefaultTimeframeDays
	}
	return *c.Timeframe
}

// Conditions is stored as a JSONB array.
type Conditions []Condition

// Value implements driver.Valuer.
func (c Conditions) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *Conditions) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported conditions type %T", src)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	return json.Unmarshal(raw, c)
}

// WarningRule is a named set of conditions that flags a student as at risk.
type WarningRule struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Conditions  Conditions `db:"conditions" json:"conditions"`
	Severity    Severity   `db:"severity" json:"severity"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	IsSystem    bool       `db:"is_system" json:"is_system"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RuleFilter scopes rule listing.
type RuleFilter struct {
	IsActive   *bool
	IsSystem   *bool
	Severities []Severity
	CreatedBy  string
	Search     string
}
