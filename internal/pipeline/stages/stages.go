// Package stages implements the pipeline stages in canonical order: demux,
// tmdb, glossary_load, source_separation, vad, asr, alignment,
// export_transcript, translation, export, lyrics_detection,
// hallucination_removal, subtitle_generation, mux.
package stages

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

// New is the stage factory wired into the runner.
func New(name string) (core.Stage, error) {
	switch name {
	case registry.StageDemux:
		return demuxStage{base{name, "Audio demux"}}, nil
	case registry.StageTmdb:
		return tmdbStage{base{name, "Film metadata"}}, nil
	case registry.StageGlossaryLoad:
		return glossaryLoadStage{base{name, "Glossary load"}}, nil
	case registry.StageSourceSeparation:
		return sourceSeparationStage{base{name, "Source separation"}}, nil
	case registry.StageVad:
		return vadStage{base{name, "Voice activity detection"}}, nil
	case registry.StageAsr:
		return asrStage{base{name, "Speech recognition"}}, nil
	case registry.StageAlignment:
		return alignmentStage{base{name, "Speaker alignment"}}, nil
	case registry.StageExportTranscript:
		return exportTranscriptStage{base{name, "Transcript export"}}, nil
	case registry.StageTranslation:
		return translationStage{base{name, "Translation"}}, nil
	case registry.StageExport:
		return exportStage{base{name, "Translation export"}}, nil
	case registry.StageLyricsDetection:
		return lyricsDetectionStage{base{name, "Lyrics detection"}}, nil
	case registry.StageHallucinationRemoval:
		return hallucinationRemovalStage{base{name, "Hallucination removal"}}, nil
	case registry.StageSubtitleGeneration:
		return subtitleGenerationStage{base{name, "Subtitle generation"}}, nil
	case registry.StageMux:
		return muxStage{base{name, "Subtitle mux"}}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", name)
	}
}

// base carries the identity shared by every stage.
type base struct {
	id   string
	name string
}

func (b base) ID() string   { return b.id }
func (b base) Name() string { return b.name }

// Cleanup is a no-op for stages that hold no external resources.
func (b base) Cleanup(*core.State) error { return nil }

// Artifact filenames shared between stages.
const (
	audioFilename         = "audio.wav"
	mediaInfoFilename     = "media.json"
	filmFilename          = "film.json"
	enrichmentFilename    = "enrichment.json"
	biasTermsFilename     = "bias_terms.json"
	glossaryStatsFilename = "glossary_stats.json"
	vocalsFilename        = "vocals.wav"
	accompanimentFilename = "accompaniment.wav"
	speechSpansFilename   = "speech_spans.json"
	transcriptFilename    = "transcript.json"
	alignedFilename       = "aligned.json"
	lyricsFilename        = "lyrics.json"
	muxedFilename         = "output.mp4"
)

func translationFilename(lang string) string { return "translation_" + lang + ".json" }
func cleanedFilename(lang string) string     { return "cleaned_" + lang + ".json" }
func subtitleFilename(lang string) string    { return "subtitles_" + lang + ".srt" }

// mediaInfo records how the demux stage resolved the input media.
type mediaInfo struct {
	Source    string `json:"source"`
	LocalPath string `json:"localPath"`
	Mode      string `json:"mode"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// filmInfo identifies the film a job processes.
type filmInfo struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// writeOutput writes JSON-encodable data as a tracked stage output and
// returns its path.
func writeOutput(h *stageio.Handle, filename string, v any, kind string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", filename, err)
	}
	path := h.OutputPath(filename)
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", filename, err)
	}
	h.TrackOutput(path, kind, nil)
	return path, nil
}

// readJSONFile decodes a JSON artifact.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// requireInput resolves an upstream artifact and fails with MissingInput
// when it does not exist.
func requireInput(h *stageio.Handle, stage, filename, fromStage string) (string, error) {
	path := h.InputPath(filename, fromStage)
	if _, err := os.Stat(path); err != nil {
		return "", core.NewStageError(core.KindMissingInput, stage,
			fmt.Sprintf("required artifact %s not found", filename), err)
	}
	return path, nil
}

// recognitionAudio picks the audio track recognition stages consume:
// separated vocals when the separation stage produced them, the demuxed
// track otherwise.
func recognitionAudio(h *stageio.Handle, stage string) (string, error) {
	vocals := h.InputPath(vocalsFilename, registry.StageSourceSeparation)
	if _, err := os.Stat(vocals); err == nil {
		return vocals, nil
	}
	return requireInput(h, stage, audioFilename, registry.StageDemux)
}

// copyFile copies src to dst without atomicity; stage outputs become
// immutable only at finalize.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// targetLanguages returns the descriptor's target languages, defaulting to
// English when none are set.
func targetLanguages(d *models.JobDescriptor) []string {
	if len(d.TargetLanguages) > 0 {
		return d.TargetLanguages
	}
	return []string{"en"}
}
