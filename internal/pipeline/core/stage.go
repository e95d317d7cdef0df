// Package core defines the pipeline execution model: the Stage contract,
// the per-job State stages read from, and the Runner that sequences stages,
// supports hash-verified resume and writes the job-level manifest.
package core

import (
	"context"
	"log/slog"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
	"github.com/clearpath-media/cp-whisperx/internal/costs"
	"github.com/clearpath-media/cp-whisperx/internal/glossary"
	"github.com/clearpath-media/cp-whisperx/internal/jobconfig"
	"github.com/clearpath-media/cp-whisperx/internal/media"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// Collaborators bundles the external bindings stages call out to. Stage
// code depends only on these interfaces, never on concrete clients.
type Collaborators struct {
	Transcriber collab.Transcriber
	Diarizer    collab.Diarizer
	Vad         collab.VadDetector
	Translator  collab.Translator
	Downloader  collab.Downloader
	Separator   collab.SourceSeparator
	Summarizer  collab.AiSummarizer
	Demuxer     collab.AudioDemuxer
	Muxer       collab.SubtitleMuxer
}

// State is the per-job context shared by stages. Stages treat it as
// read-only; artifacts move between stages through finalized stage
// directories, not through State.
type State struct {
	JobDir     string
	Descriptor *models.JobDescriptor
	Config     *jobconfig.Config
	Profile    *models.UserProfile
	Costs      *costs.Tracker
	Glossary   *glossary.Manager
	Media      *media.Adapter
	Collab     Collaborators
	Logger     *slog.Logger
}

// StageResult is a stage's report of a clean return.
type StageResult struct {
	Status  models.StageStatus
	Message string
}

// Succeeded is the common all-good result.
func Succeeded() *StageResult {
	return &StageResult{Status: models.StatusSuccess}
}

// Skipped marks a stage that had nothing to do.
func Skipped(message string) *StageResult {
	return &StageResult{Status: models.StatusSkipped, Message: message}
}

// Stage is one unit of pipeline processing. ID is the canonical registry
// name; Execute runs the stage against its I/O handle and either returns a
// result or an error that aborts the workflow. Cleanup releases any
// resources the stage holds outside its directory and runs regardless of
// the execution outcome.
type Stage interface {
	ID() string
	Name() string
	Execute(ctx context.Context, state *State, handle *stageio.Handle) (*StageResult, error)
	Cleanup(state *State) error
}

// Factory builds the Stage for a canonical stage name.
type Factory func(name string) (Stage, error)

// CostEstimator is implemented by stages that call paid services. The
// runner sums the estimates during the budget pre-gate and warns when the
// projected spend would cross the alert threshold.
type CostEstimator interface {
	EstimateCost(state *State) float64
}
