package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a conversion run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ConversionRun tracks one partitioned batch run
type ConversionRun struct {
	ID           uuid.UUID          `db:"id" json:"id"`
	Status       RunStatus          `db:"status" json:"status"`
	Partitions   int                `db:"partitions" json:"partitions"`
	FullReload   bool               `db:"full_reload" json:"full_reload"`
	TotalRecords int                `db:"total_records" json:"total_records"`
	ErrorMessage *string            `db:"error_message" json:"error_message,omitempty"`
	Summary      *ConversionSummary `db:"-" json:"summary,omitempty"`
	StartedAt    time.Time          `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

// TableName returns the database table name
func (ConversionRun) TableName() string {
	return "conversion_runs"
}

// StudentConvertedEvent is published after a pass completes
type StudentConvertedEvent struct {
	RunID     string    `json:"run_id,omitempty"`
	PEN       string    `json:"pen"`
	StudentID string    `json:"student_id"`
	Program   string    `json:"program"`
	Pass      int       `json:"pass"`
	LoadType  string    `json:"load_type"`
	Added     bool      `json:"added"`
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedEvent is published once a run's summary has been merged
type RunCompletedEvent struct {
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"`
	ReadCount      int64     `json:"read_count"`
	ProcessedCount int64     `json:"processed_count"`
	AddedCount     int64     `json:"added_count"`
	UpdatedCount   int64     `json:"updated_count"`
	ErroredCount   int64     `json:"errored_count"`
	Timestamp      time.Time `json:"timestamp"`
}
