package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDescriptor() *JobDescriptor {
	return &JobDescriptor{
		JobID:           "job-001",
		UserID:          1,
		Workflow:        WorkflowTranscribe,
		SourceLanguage:  "hi",
		TargetLanguages: []string{"en"},
		InputMedia:      "/media/film.mp4",
		MediaProcessing: MediaProcessing{Mode: MediaModeFull},
	}
}

func TestParseWorkflow(t *testing.T) {
	for _, valid := range []string{"transcribe", "translate", "subtitle"} {
		w, err := ParseWorkflow(valid)
		require.NoError(t, err)
		assert.Equal(t, Workflow(valid), w)
	}

	_, err := ParseWorkflow("publish")
	assert.Error(t, err)
}

func TestJobDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*JobDescriptor)
		wantErr string
	}{
		{"valid", func(j *JobDescriptor) {}, ""},
		{"missing job id", func(j *JobDescriptor) { j.JobID = "" }, "jobId"},
		{"zero user id", func(j *JobDescriptor) { j.UserID = 0 }, "userId"},
		{"bad workflow", func(j *JobDescriptor) { j.Workflow = "render" }, "workflow"},
		{"missing input", func(j *JobDescriptor) { j.InputMedia = "" }, "inputMedia"},
		{"bad source language", func(j *JobDescriptor) { j.SourceLanguage = "hindi" }, "sourceLanguage"},
		{"bad target language", func(j *JobDescriptor) { j.TargetLanguages = []string{"zz@"} }, "targetLanguages"},
		{"bad mode", func(j *JobDescriptor) { j.MediaProcessing.Mode = "partial" }, "mode"},
		{"bad clip start", func(j *JobDescriptor) {
			j.MediaProcessing = MediaProcessing{Mode: MediaModeClip, StartTime: "1:2:3"}
		}, "startTime"},
		{"valid clip", func(j *JobDescriptor) {
			j.MediaProcessing = MediaProcessing{Mode: MediaModeClip, StartTime: "00:01:30", EndTime: "00:05:00"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validDescriptor()
			tt.mutate(j)
			err := j.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadJobDescriptor(t *testing.T) {
	jobDir := t.TempDir()
	content := `{
  "jobId": "job-042",
  "userId": 3,
  "workflow": "subtitle",
  "sourceLanguage": "hi",
  "targetLanguages": ["en", "de"],
  "inputMedia": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "mediaProcessing": {"mode": "clip", "startTime": "00:10:00", "endTime": "00:12:30"},
  "vad": {"enabled": true, "threshold": 0.4},
  "sourceSeparation": {"enabled": true, "quality": "balanced"}
}`
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, DescriptorFilename), []byte(content), 0o644))

	job, err := LoadJobDescriptor(jobDir)
	require.NoError(t, err)

	assert.Equal(t, "job-042", job.JobID)
	assert.Equal(t, WorkflowSubtitle, job.Workflow)
	assert.Equal(t, []string{"en", "de"}, job.TargetLanguages)
	require.NotNil(t, job.Vad)
	assert.True(t, job.Vad.Enabled)
	require.NotNil(t, job.Vad.Threshold)
	assert.InDelta(t, 0.4, *job.Vad.Threshold, 1e-9)
}

func TestLoadJobDescriptor_Missing(t *testing.T) {
	_, err := LoadJobDescriptor(t.TempDir())
	assert.Error(t, err)
}
