package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/text/language"
)

// Workflow identifies which stage sequence a job runs.
type Workflow string

// Supported workflows. Each workflow's stage list is a strict prefix of the
// next one: transcribe ⊑ translate ⊑ subtitle.
const (
	WorkflowTranscribe Workflow = "transcribe"
	WorkflowTranslate  Workflow = "translate"
	WorkflowSubtitle   Workflow = "subtitle"
)

// ParseWorkflow validates and returns a Workflow.
func ParseWorkflow(s string) (Workflow, error) {
	switch Workflow(s) {
	case WorkflowTranscribe, WorkflowTranslate, WorkflowSubtitle:
		return Workflow(s), nil
	default:
		return "", fmt.Errorf("unknown workflow %q (expected transcribe, translate or subtitle)", s)
	}
}

// Media processing modes.
const (
	MediaModeFull = "full"
	MediaModeClip = "clip"
)

// DescriptorFilename is the job descriptor file name inside a job directory.
const DescriptorFilename = "job.json"

var timecodeRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// JobDescriptor is the per-job configuration read from jobDir/job.json.
type JobDescriptor struct {
	JobID            string                  `json:"jobId"`
	UserID           int                     `json:"userId"`
	Workflow         Workflow                `json:"workflow"`
	SourceLanguage   string                  `json:"sourceLanguage"`
	TargetLanguages  []string                `json:"targetLanguages,omitempty"`
	InputMedia       string                  `json:"inputMedia"`
	MediaProcessing  MediaProcessing         `json:"mediaProcessing"`
	Glossary         *GlossaryRef            `json:"glossary,omitempty"`
	Vad              *VadOptions             `json:"vad,omitempty"`
	Translation      *TranslationOptions     `json:"translation,omitempty"`
	SourceSeparation *SourceSeparationOption `json:"sourceSeparation,omitempty"`
	YouTubeMetadata  *YouTubeMetadata        `json:"youtubeMetadata,omitempty"`
}

// MediaProcessing selects full-length or clipped processing.
type MediaProcessing struct {
	Mode      string `json:"mode"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// GlossaryRef points at an optional film-specific glossary or enrichment file.
type GlossaryRef struct {
	Path string `json:"path,omitempty"`
}

// VadOptions configures voice-activity detection.
type VadOptions struct {
	Enabled   bool     `json:"enabled"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// TranslationOptions configures the translation stage.
type TranslationOptions struct {
	Model    string `json:"model,omitempty"`
	Device   string `json:"device,omitempty"`
	NumBeams int    `json:"numBeams,omitempty"`
}

// SourceSeparationOption configures vocal/accompaniment separation.
type SourceSeparationOption struct {
	Enabled bool   `json:"enabled"`
	Quality string `json:"quality,omitempty"` // fast, balanced, quality
}

// YouTubeMetadata carries title/description hints for online media.
type YouTubeMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// LoadJobDescriptor reads and validates jobDir/job.json.
func LoadJobDescriptor(jobDir string) (*JobDescriptor, error) {
	path := filepath.Join(jobDir, DescriptorFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job descriptor: %w", err)
	}

	var job JobDescriptor
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job descriptor: %w", err)
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks descriptor invariants.
func (j *JobDescriptor) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job descriptor: jobId is required")
	}
	if j.UserID < 1 {
		return fmt.Errorf("job descriptor: userId must be a positive integer")
	}
	if _, err := ParseWorkflow(string(j.Workflow)); err != nil {
		return fmt.Errorf("job descriptor: %w", err)
	}
	if j.InputMedia == "" {
		return fmt.Errorf("job descriptor: inputMedia is required")
	}

	if err := validateLanguage(j.SourceLanguage); err != nil {
		return fmt.Errorf("job descriptor: sourceLanguage: %w", err)
	}
	for _, lang := range j.TargetLanguages {
		if err := validateLanguage(lang); err != nil {
			return fmt.Errorf("job descriptor: targetLanguages: %w", err)
		}
	}

	switch j.MediaProcessing.Mode {
	case "", MediaModeFull:
	case MediaModeClip:
		if j.MediaProcessing.StartTime != "" && !timecodeRe.MatchString(j.MediaProcessing.StartTime) {
			return fmt.Errorf("job descriptor: startTime must be HH:MM:SS")
		}
		if j.MediaProcessing.EndTime != "" && !timecodeRe.MatchString(j.MediaProcessing.EndTime) {
			return fmt.Errorf("job descriptor: endTime must be HH:MM:SS")
		}
	default:
		return fmt.Errorf("job descriptor: mediaProcessing.mode must be %q or %q", MediaModeFull, MediaModeClip)
	}

	return nil
}

// validateLanguage checks an ISO-639-1 language code.
func validateLanguage(code string) error {
	if code == "" {
		return fmt.Errorf("language code is required")
	}
	if len(code) != 2 {
		return fmt.Errorf("language %q is not a two-letter ISO-639-1 code", code)
	}
	if _, err := language.ParseBase(code); err != nil {
		return fmt.Errorf("language %q: %w", code, err)
	}
	return nil
}
