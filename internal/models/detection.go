package models

import (
	"time"

	"github.com/lib/pq"
)

// ScopeType selects which students a detection run covers.
type ScopeType string

const (
	ScopeStudent ScopeType = "student"
	ScopeClass   ScopeType = "class"
	ScopeAll     ScopeType = "all"
)

// TargetScope is the set of students a run covers. IDs are ignored for ScopeAll.
type TargetScope struct {
	Type ScopeType `json:"type"`
	IDs  []string  `json:"ids,omitempty"`
}

// Valid reports whether the scope type is known.
func (s TargetScope) Valid() bool {
	switch s.Type {
	case ScopeStudent, ScopeClass, ScopeAll:
		return true
	default:
		return false
	}
}

// StudentRef is the denormalised student identity copied onto alerts.
type StudentRef struct {
	ID        string  `db:"id" json:"id"`
	FullName  string  `db:"full_name" json:"full_name"`
	ClassID   *string `db:"class_id" json:"class_id,omitempty"`
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}

// RunTrigger records who started a detection run.
type RunTrigger string

const (
	RunTriggerManual    RunTrigger = "manual"
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerAPI       RunTrigger = "api"
)

// RunStatus is the state of a detection run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// DetectionResult is returned by a detection run.
type DetectionResult struct {
	RunID     string   `json:"run_id,omitempty"`
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors"`
}

// DetectionRun is the persisted log entry of one run.
type DetectionRun struct {
	ID         string         `db:"id" json:"id"`
	ScopeType  ScopeType      `db:"scope_type" json:"scope_type"`
	ScopeIDs   pq.StringArray `db:"scope_ids" json:"scope_ids"`
	Trigger    RunTrigger     `db:"trigger" json:"trigger"`
	Status     RunStatus      `db:"status" json:"status"`
	Processed  int            `db:"processed" json:"processed"`
	Created    int            `db:"created" json:"created"`
	Updated    int            `db:"updated" json:"updated"`
	ErrorCount int            `db:"error_count" json:"error_count"`
	Errors     pq.StringArray `db:"errors" json:"errors"`
	StartedAt  time.Time      `db:"started_at" json:"started_at"`
	FinishedAt *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	DurationMs *int64         `db:"duration_ms" json:"duration_ms,omitempty"`
}

// DetectionRunFilter scopes run listing.
type DetectionRunFilter struct {
	Status   RunStatus
	Trigger  RunTrigger
	Page     int
	PageSize int
}
