package stageio

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("stage output contents")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum := sha256.Sum256(content)
	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
}

func TestTrackerFinalize(t *testing.T) {
	stageDir := t.TempDir()
	tracker := NewTracker(registry.StageAsr, "job-001", stageDir)

	inPath := filepath.Join(stageDir, "audio.wav")
	require.NoError(t, os.WriteFile(inPath, []byte("pcm"), 0o644))
	tracker.TrackInput(inPath, models.FileKindAudio, map[string]any{"sampleRate": 16000})

	// Output tracked before it is written: placeholder, re-hashed later.
	outPath := filepath.Join(stageDir, "transcript.json")
	tracker.TrackOutput(outPath, models.FileKindTranscript, nil)
	require.NoError(t, os.WriteFile(outPath, []byte(`{"segments":[]}`), 0o644))

	tracker.SetConfig("model", "large-v3")
	tracker.AddConfig("languages", "hi")
	tracker.AddConfig("languages", "en")
	tracker.AddWarning("low confidence segment")

	require.NoError(t, tracker.Finalize(models.StatusSuccess, 0))

	manifest, err := ReadManifest(stageDir)
	require.NoError(t, err)
	assert.Equal(t, registry.StageAsr, manifest.Stage)
	assert.Equal(t, "job-001", manifest.JobID)
	assert.Equal(t, models.StatusSuccess, manifest.Status)
	assert.Equal(t, 0, manifest.ExitCode)
	assert.Equal(t, []string{"low confidence segment"}, manifest.Warnings)
	assert.Equal(t, "large-v3", manifest.Config["model"])
	assert.Len(t, manifest.Config["languages"], 2)

	require.Len(t, manifest.Inputs, 1)
	assert.Equal(t, "wav", manifest.Inputs[0].Format)
	assert.Len(t, manifest.Inputs[0].Hash, 64)

	// The placeholder was resolved to the real digest.
	require.Len(t, manifest.Outputs, 1)
	wantHash, err := HashFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, wantHash, manifest.Outputs[0].Hash)
	assert.Equal(t, int64(len(`{"segments":[]}`)), manifest.Outputs[0].Size)
}

func TestTrackerFinalizeOnce(t *testing.T) {
	tracker := NewTracker(registry.StageVad, "job-001", t.TempDir())
	require.NoError(t, tracker.Finalize(models.StatusSuccess, 0))
	assert.Error(t, tracker.Finalize(models.StatusSuccess, 0))
}

func TestTrackerDropsMissingFiles(t *testing.T) {
	stageDir := t.TempDir()
	tracker := NewTracker(registry.StageVad, "job-001", stageDir)
	tracker.TrackOutput(filepath.Join(stageDir, "never_written.json"), models.FileKindData, nil)

	require.NoError(t, tracker.Finalize(models.StatusSuccess, 0))
	manifest, err := ReadManifest(stageDir)
	require.NoError(t, err)
	assert.Empty(t, manifest.Outputs)
}

func TestTrackerContainmentWarning(t *testing.T) {
	stageDir := t.TempDir()
	tracker := NewTracker(registry.StageVad, "job-001", stageDir)

	outside := filepath.Join(t.TempDir(), "escaped.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	tracker.TrackOutput(outside, models.FileKindData, nil)

	require.NoError(t, tracker.Finalize(models.StatusSuccessWithWarnings, 0))
	manifest := tracker.Manifest()
	require.Len(t, manifest.Warnings, 1)
	assert.Contains(t, manifest.Warnings[0], "outside the stage directory")
}

func TestTrackerCapturesErrors(t *testing.T) {
	tracker := NewTracker(registry.StageAsr, "job-001", t.TempDir())
	tracker.AddError("transcription failed", errors.New("model not found"))

	require.NoError(t, tracker.Finalize(models.StatusFailed, 1))
	manifest := tracker.Manifest()
	require.Len(t, manifest.Errors, 1)
	assert.Equal(t, "transcription failed", manifest.Errors[0].Message)
	assert.Equal(t, "model not found", manifest.Errors[0].Cause)
	assert.Equal(t, 1, manifest.ExitCode)
}

func writeDescriptor(t *testing.T, jobDir string) {
	t.Helper()
	descriptor := `{
	  "jobId": "job-777",
	  "userId": 1,
	  "workflow": "transcribe",
	  "sourceLanguage": "hi",
	  "inputMedia": "input.mp4",
	  "mediaProcessing": {"mode": "full"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job.json"), []byte(descriptor), 0o644))
}

func TestHandleOpen(t *testing.T) {
	jobDir := t.TempDir()
	writeDescriptor(t, jobDir)

	h, err := Open(registry.StageDemux, jobDir, OpenOptions{EnableManifest: true})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(jobDir, "01_demux"), h.StageDir())
	assert.DirExists(t, h.StageDir())
	assert.FileExists(t, filepath.Join(h.StageDir(), StageLogFilename))

	// Job id comes from the descriptor.
	h.StageLogger().Info("demuxing")
	require.NoError(t, h.Finalize(models.StatusSuccess))

	manifest, err := ReadManifest(h.StageDir())
	require.NoError(t, err)
	assert.Equal(t, "job-777", manifest.JobID)

	// stage.log received the record.
	logData, err := os.ReadFile(filepath.Join(h.StageDir(), StageLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "demuxing")
	assert.Contains(t, string(logData), "job-777")
}

func TestHandleOpen_UnknownStage(t *testing.T) {
	_, err := Open("no_such_stage", t.TempDir(), OpenOptions{})
	assert.Error(t, err)
}

func TestHandleInputPath(t *testing.T) {
	jobDir := t.TempDir()
	writeDescriptor(t, jobDir)

	// Previous stage (demux) produced audio.wav.
	demuxDir := filepath.Join(jobDir, "01_demux")
	require.NoError(t, os.MkdirAll(demuxDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(demuxDir, "audio.wav"), []byte("pcm"), 0o644))

	h, err := Open(registry.StageTmdb, jobDir, OpenOptions{})
	require.NoError(t, err)
	defer h.Finalize(models.StatusSuccess) //nolint:errcheck

	// Walk back one ordinal.
	assert.Equal(t, filepath.Join(demuxDir, "audio.wav"), h.InputPath("audio.wav", ""))

	// Miss in the previous stage falls back to the job directory.
	assert.Equal(t, filepath.Join(jobDir, "metadata.json"), h.InputPath("metadata.json", ""))

	// Explicit fromStage resolves without an existence check.
	asr, err := Open(registry.StageAlignment, jobDir, OpenOptions{})
	require.NoError(t, err)
	defer asr.Finalize(models.StatusSuccess) //nolint:errcheck
	assert.Equal(t, filepath.Join(demuxDir, "audio.wav"), asr.InputPath("audio.wav", registry.StageDemux))
}

func TestHandleFinalizeOnce(t *testing.T) {
	jobDir := t.TempDir()
	writeDescriptor(t, jobDir)

	h, err := Open(registry.StageDemux, jobDir, OpenOptions{EnableManifest: true})
	require.NoError(t, err)

	out := h.OutputPath("audio.wav")
	require.NoError(t, os.WriteFile(out, []byte("pcm"), 0o644))
	h.TrackOutput(out, models.FileKindAudio, nil)

	require.NoError(t, h.Finalize(models.StatusSuccess))
	assert.True(t, h.Finalized())
	assert.Error(t, h.Finalize(models.StatusSuccess))
}

func TestHandleManifestDisabled(t *testing.T) {
	jobDir := t.TempDir()
	writeDescriptor(t, jobDir)

	h, err := Open(registry.StageDemux, jobDir, OpenOptions{EnableManifest: false})
	require.NoError(t, err)

	// Tracking calls are no-ops, not panics.
	h.TrackOutput(h.OutputPath("audio.wav"), models.FileKindAudio, nil)
	h.AddWarning("ignored")

	_, err = h.Manifest()
	assert.Error(t, err)

	require.NoError(t, h.Finalize(models.StatusSuccess))
	_, err = os.Stat(filepath.Join(h.StageDir(), ManifestFilename))
	assert.True(t, os.IsNotExist(err))
}
