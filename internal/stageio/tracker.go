// Package stageio is the substrate stage code runs on: per-stage directory
// resolution, input/output tracking with SHA-256 digests, per-stage logging
// and atomic manifest finalization.
package stageio

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

// ManifestFilename is the manifest file name inside a stage directory.
const ManifestFilename = "manifest.json"

// Tracker accumulates a StageManifest in memory. Files are hashed with
// streaming SHA-256 at tracking time; files tracked before they exist get a
// placeholder hash and are re-hashed at finalize. Finalize writes the
// manifest with write-temp-then-rename so observers never see a partial
// file.
type Tracker struct {
	stageDir  string
	manifest  models.StageManifest
	finalized bool
}

// NewTracker starts a manifest for one stage execution.
func NewTracker(stage, jobID, stageDir string) *Tracker {
	return &Tracker{
		stageDir: stageDir,
		manifest: models.StageManifest{
			Stage:     stage,
			JobID:     jobID,
			StartTime: time.Now().UTC(),
			Config:    make(map[string]any),
			Inputs:    []models.FileRecord{},
			Outputs:   []models.FileRecord{},
		},
	}
}

// TrackInput records a consumed file.
func (t *Tracker) TrackInput(path, kind string, attrs map[string]any) {
	t.manifest.Inputs = append(t.manifest.Inputs, t.record(path, kind, attrs))
}

// TrackOutput records a produced file. Paths outside the stage directory
// violate the containment policy and are recorded with a warning.
func (t *Tracker) TrackOutput(path, kind string, attrs map[string]any) {
	if !t.contains(path) {
		t.AddWarning(fmt.Sprintf("output %s is outside the stage directory", path))
	}
	t.manifest.Outputs = append(t.manifest.Outputs, t.record(path, kind, attrs))
}

// TrackIntermediate records a scratch file and whether it is kept.
func (t *Tracker) TrackIntermediate(path string, retained bool, reason string) {
	rec := t.record(path, models.FileKindData, nil)
	rec.Retained = retained
	rec.Reason = reason
	t.manifest.Intermediates = append(t.manifest.Intermediates, rec)
}

// AddError captures a stage error in the manifest.
func (t *Tracker) AddError(message string, cause error) {
	entry := models.ManifestError{Message: message}
	if cause != nil {
		entry.Cause = cause.Error()
	}
	t.manifest.Errors = append(t.manifest.Errors, entry)
}

// AddWarning captures a non-fatal condition.
func (t *Tracker) AddWarning(message string) {
	t.manifest.Warnings = append(t.manifest.Warnings, message)
}

// SetConfig records one effective configuration value.
func (t *Tracker) SetConfig(key string, value any) {
	t.manifest.Config[key] = value
}

// AddConfig appends a value to a list-valued configuration key.
func (t *Tracker) AddConfig(key string, value any) {
	switch existing := t.manifest.Config[key].(type) {
	case nil:
		t.manifest.Config[key] = []any{value}
	case []any:
		t.manifest.Config[key] = append(existing, value)
	default:
		t.manifest.Config[key] = []any{existing, value}
	}
}

// Errors returns the captured errors.
func (t *Tracker) Errors() []models.ManifestError {
	return t.manifest.Errors
}

// Finalize re-hashes placeholder records, drops records whose files vanished
// and atomically writes the manifest. A tracker finalizes exactly once.
func (t *Tracker) Finalize(status models.StageStatus, exitCode int) error {
	if t.finalized {
		return fmt.Errorf("stage %s: manifest already finalized", t.manifest.Stage)
	}
	t.finalized = true

	t.manifest.EndTime = time.Now().UTC()
	t.manifest.Status = status
	t.manifest.ExitCode = exitCode

	t.manifest.Inputs = t.rehash(t.manifest.Inputs)
	t.manifest.Outputs = t.rehash(t.manifest.Outputs)
	t.manifest.Intermediates = t.rehash(t.manifest.Intermediates)

	data, err := json.MarshalIndent(t.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(t.stageDir, ManifestFilename), data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Finalized reports whether Finalize has run.
func (t *Tracker) Finalized() bool {
	return t.finalized
}

// Manifest returns a copy of the accumulated manifest.
func (t *Tracker) Manifest() models.StageManifest {
	return t.manifest
}

// record builds a FileRecord, hashing the file if it already exists.
func (t *Tracker) record(path, kind string, attrs map[string]any) models.FileRecord {
	rec := models.FileRecord{
		Path:   path,
		Kind:   kind,
		Format: formatFromPath(path),
		Hash:   models.PlaceholderHash,
		Attrs:  attrs,
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		rec.Size = info.Size()
		if hash, err := HashFile(path); err == nil {
			rec.Hash = hash
		}
	}
	return rec
}

// rehash resolves placeholder hashes and removes records for files that no
// longer exist, so every surviving record refers to a real file.
func (t *Tracker) rehash(records []models.FileRecord) []models.FileRecord {
	if records == nil {
		return nil
	}
	kept := records[:0]
	for _, rec := range records {
		info, err := os.Stat(rec.Path)
		if err != nil || info.IsDir() {
			continue
		}
		if rec.Hash == models.PlaceholderHash {
			hash, err := HashFile(rec.Path)
			if err != nil {
				continue
			}
			rec.Hash = hash
			rec.Size = info.Size()
		}
		kept = append(kept, rec)
	}
	return kept
}

func (t *Tracker) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	base, err := filepath.Abs(t.stageDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel))
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// HashFile returns the hex SHA-256 of a file's contents, streamed.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadManifest loads a previously finalized stage manifest.
func ReadManifest(stageDir string) (*models.StageManifest, error) {
	data, err := os.ReadFile(filepath.Join(stageDir, ManifestFilename))
	if err != nil {
		return nil, err
	}
	var manifest models.StageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest in %s: %w", stageDir, err)
	}
	return &manifest, nil
}

func formatFromPath(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 1 {
		return ext[1:]
	}
	return ""
}
