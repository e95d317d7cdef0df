package models

import "time"

// PipelineRun is the run-history record persisted after every pipeline run.
type PipelineRun struct {
	BaseModel
	JobID           string        `gorm:"index;not null" json:"job_id"`
	UserID          int           `gorm:"index;not null" json:"user_id"`
	Workflow        string        `gorm:"not null" json:"workflow"`
	Status          string        `gorm:"index;not null" json:"status"`
	StagesTotal     int           `json:"stages_total"`
	StagesCompleted int           `json:"stages_completed"`
	StagesSkipped   int           `json:"stages_skipped"`
	CostUsd         float64       `json:"cost_usd"`
	Duration        time.Duration `json:"duration"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Error           string        `json:"error,omitempty"`
}

// TableName overrides the GORM table name.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)
