package models

import "time"

// StageStatus is the terminal status of a stage execution.
type StageStatus string

// Stage statuses recorded in manifests.
const (
	StatusSuccess             StageStatus = "success"
	StatusFailed              StageStatus = "failed"
	StatusSkipped             StageStatus = "skipped"
	StatusSuccessWithWarnings StageStatus = "success-with-warnings"

	// StatusSkippedIdempotent is recorded in the job-level manifest when a
	// stage was skipped on resume because its previous manifest reported
	// success and all tracked outputs still hash-match.
	StatusSkippedIdempotent StageStatus = "skipped-idempotent"
)

// File record kinds.
const (
	FileKindVideo      = "video"
	FileKindAudio      = "audio"
	FileKindTranscript = "transcript"
	FileKindSubtitle   = "subtitle"
	FileKindGlossary   = "glossary"
	FileKindMetadata   = "metadata"
	FileKindData       = "data"
)

// PlaceholderHash marks a tracked file that did not exist at tracking time.
// Such records are re-hashed at finalize.
const PlaceholderHash = "pending"

// FileRecord describes one input, output or intermediate file of a stage.
type FileRecord struct {
	Path     string         `json:"path"`
	Kind     string         `json:"kind"`
	Format   string         `json:"format,omitempty"`
	Hash     string         `json:"hash"`
	Size     int64          `json:"size"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Retained bool           `json:"retained,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// ManifestError is an error captured in a stage manifest.
type ManifestError struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// StageManifest is the per-stage record of what ran, what it consumed and
// what it produced, written to stageDir/manifest.json.
type StageManifest struct {
	Stage         string          `json:"stage"`
	JobID         string          `json:"jobId"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	ExitCode      int             `json:"exitCode"`
	Status        StageStatus     `json:"status"`
	Config        map[string]any  `json:"config,omitempty"`
	Inputs        []FileRecord    `json:"inputs"`
	Outputs       []FileRecord    `json:"outputs"`
	Intermediates []FileRecord    `json:"intermediates,omitempty"`
	Errors        []ManifestError `json:"errors,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// StageSummary is one stage's entry in the job-level manifest.
type StageSummary struct {
	Stage    string      `json:"stage"`
	Status   StageStatus `json:"status"`
	Duration float64     `json:"durationSeconds"`
}

// HostInfo is a snapshot of the host recorded in the job-level manifest.
type HostInfo struct {
	Platform     string  `json:"platform"`
	CPUCount     int     `json:"cpuCount"`
	MemoryTotalB uint64  `json:"memoryTotalBytes"`
	MemoryUsedPc float64 `json:"memoryUsedPercent"`
}

// JobManifest summarizes a whole pipeline run, written to jobDir/manifest.json.
type JobManifest struct {
	JobID        string         `json:"jobId"`
	RunID        string         `json:"runId"`
	Workflow     Workflow       `json:"workflow"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	Status       StageStatus    `json:"status"`
	Stages       []StageSummary `json:"stages"`
	TotalCostUsd float64        `json:"totalCostUsd"`
	Host         *HostInfo      `json:"host,omitempty"`
}
