package stageio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/observability"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
)

// StageLogFilename is the per-stage log file inside a stage directory.
const StageLogFilename = "stage.log"

// Handle is a stage's window onto the job directory: it owns the stage
// directory, the manifest tracker and the per-stage log for the duration of
// one execution. Destruction is Finalize.
type Handle struct {
	stageName string
	ordinal   int
	jobDir    string
	stageDir  string

	tracker     *Tracker
	logFile     *os.File
	stageLogger *slog.Logger
	finalized   bool
}

// OpenOptions tunes Open.
type OpenOptions struct {
	// JobID overrides the job id read from the job descriptor.
	JobID string
	// EnableManifest controls whether Finalize writes a manifest. Disabled
	// handles still resolve paths and log.
	EnableManifest bool
	// Logger is the process logger records are fanned out to; nil means the
	// default logger.
	Logger *slog.Logger
}

// Open creates (or reuses) the stage directory for stageName under jobDir,
// opens the per-stage log and starts a manifest.
func Open(stageName, jobDir string, opts OpenOptions) (*Handle, error) {
	ordinal, err := registry.Ordinal(stageName)
	if err != nil {
		return nil, err
	}
	dirName, err := registry.DirName(stageName)
	if err != nil {
		return nil, err
	}

	stageDir := filepath.Join(jobDir, dirName)
	if err := os.MkdirAll(stageDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating stage directory: %w", err)
	}

	jobID := opts.JobID
	if jobID == "" {
		if descriptor, err := models.LoadJobDescriptor(jobDir); err == nil {
			jobID = descriptor.JobID
		}
	}

	logFile, err := os.OpenFile(filepath.Join(stageDir, StageLogFilename),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening stage log: %w", err)
	}

	processLogger := opts.Logger
	if processLogger == nil {
		processLogger = slog.Default()
	}
	fileLogger := slog.New(slog.NewJSONHandler(logFile, nil))
	stageLogger := observability.WithStage(
		observability.WithJob(observability.Tee(fileLogger, processLogger), jobID),
		stageName,
	)

	h := &Handle{
		stageName:   stageName,
		ordinal:     ordinal,
		jobDir:      jobDir,
		stageDir:    stageDir,
		logFile:     logFile,
		stageLogger: stageLogger,
	}
	if opts.EnableManifest {
		h.tracker = NewTracker(stageName, jobID, stageDir)
	}
	return h, nil
}

// StageName returns the stage's canonical name.
func (h *Handle) StageName() string { return h.stageName }

// StageDir returns the stage's directory.
func (h *Handle) StageDir() string { return h.stageDir }

// JobDir returns the enclosing job directory.
func (h *Handle) JobDir() string { return h.jobDir }

// InputPath resolves where to read filename from. A named fromStage resolves
// to that stage's directory; otherwise the immediately preceding stage is
// tried. When the file is absent there, the job directory is the fallback.
// InputPath never fails on absence; callers check existence.
func (h *Handle) InputPath(filename, fromStage string) string {
	if fromStage != "" {
		if dirName, err := registry.DirName(fromStage); err == nil {
			return filepath.Join(h.jobDir, dirName, filename)
		}
		return filepath.Join(h.jobDir, filename)
	}

	if prev := registry.NameFromOrdinal(h.ordinal - 1); prev != "" {
		dirName, _ := registry.DirName(prev)
		candidate := filepath.Join(h.jobDir, dirName, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(h.jobDir, filename)
}

// OutputPath resolves filename inside the stage directory.
func (h *Handle) OutputPath(filename string) string {
	return filepath.Join(h.stageDir, filename)
}

// TrackInput records a consumed file in the manifest.
func (h *Handle) TrackInput(path, kind string, attrs map[string]any) {
	if h.tracker != nil {
		h.tracker.TrackInput(path, kind, attrs)
	}
}

// TrackOutput records a produced file in the manifest.
func (h *Handle) TrackOutput(path, kind string, attrs map[string]any) {
	if h.tracker != nil {
		h.tracker.TrackOutput(path, kind, attrs)
	}
}

// TrackIntermediate records a scratch file and its retention decision.
func (h *Handle) TrackIntermediate(path string, retained bool, reason string) {
	if h.tracker != nil {
		h.tracker.TrackIntermediate(path, retained, reason)
	}
}

// AddError records a stage error.
func (h *Handle) AddError(message string, cause error) {
	if h.tracker != nil {
		h.tracker.AddError(message, cause)
	}
}

// AddWarning records a non-fatal condition.
func (h *Handle) AddWarning(message string) {
	if h.tracker != nil {
		h.tracker.AddWarning(message)
	}
}

// SetConfig records an effective configuration value.
func (h *Handle) SetConfig(key string, value any) {
	if h.tracker != nil {
		h.tracker.SetConfig(key, value)
	}
}

// AddConfig appends to a list-valued configuration key.
func (h *Handle) AddConfig(key string, value any) {
	if h.tracker != nil {
		h.tracker.AddConfig(key, value)
	}
}

// StageLogger returns a logger writing to both the per-stage log file and
// the process logger, stamped with job and stage fields.
func (h *Handle) StageLogger() *slog.Logger {
	return h.stageLogger
}

// Finalize writes the manifest (when enabled) and releases the log file.
// Exactly one Finalize per handle; further calls error.
func (h *Handle) Finalize(status models.StageStatus) error {
	if h.finalized {
		return fmt.Errorf("stage %s: handle already finalized", h.stageName)
	}
	h.finalized = true

	var finalizeErr error
	if h.tracker != nil {
		exitCode := 0
		if status == models.StatusFailed {
			exitCode = 1
		}
		finalizeErr = h.tracker.Finalize(status, exitCode)
	}

	if err := h.logFile.Close(); err != nil && finalizeErr == nil {
		finalizeErr = fmt.Errorf("closing stage log: %w", err)
	}
	return finalizeErr
}

// Finalized reports whether the handle has been finalized.
func (h *Handle) Finalized() bool {
	return h.finalized
}

// Manifest returns the accumulated manifest, or an error when manifest
// tracking is disabled.
func (h *Handle) Manifest() (models.StageManifest, error) {
	if h.tracker == nil {
		return models.StageManifest{}, errors.New("manifest tracking disabled")
	}
	return h.tracker.Manifest(), nil
}
