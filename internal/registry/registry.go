// Package registry holds the canonical catalogue of pipeline stages and the
// mapping from workflows to their ordered stage lists.
package registry

import (
	"fmt"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

// Canonical stage names. The order of this list fixes each stage's ordinal;
// stage directories are named "{ordinal:02d}_{name}".
const (
	StageDemux                = "demux"
	StageTmdb                 = "tmdb"
	StageGlossaryLoad         = "glossary_load"
	StageSourceSeparation     = "source_separation"
	StageVad                  = "vad"
	StageAsr                  = "asr"
	StageAlignment            = "alignment"
	StageExportTranscript     = "export_transcript"
	StageTranslation          = "translation"
	StageExport               = "export"
	StageLyricsDetection      = "lyrics_detection"
	StageHallucinationRemoval = "hallucination_removal"
	StageSubtitleGeneration   = "subtitle_generation"
	StageMux                  = "mux"
)

// canonicalOrder is the full stage sequence; ordinals start at 1.
var canonicalOrder = []string{
	StageDemux,
	StageTmdb,
	StageGlossaryLoad,
	StageSourceSeparation,
	StageVad,
	StageAsr,
	StageAlignment,
	StageExportTranscript,
	StageTranslation,
	StageExport,
	StageLyricsDetection,
	StageHallucinationRemoval,
	StageSubtitleGeneration,
	StageMux,
}

// Stage counts per workflow. Each workflow's list is a strict prefix of the
// next, so a subtitle run produces all translate artifacts, which produce
// all transcribe artifacts.
var workflowLengths = map[models.Workflow]int{
	models.WorkflowTranscribe: 8,
	models.WorkflowTranslate:  10,
	models.WorkflowSubtitle:   14,
}

var ordinals = func() map[string]int {
	m := make(map[string]int, len(canonicalOrder))
	for i, name := range canonicalOrder {
		m[name] = i + 1
	}
	return m
}()

// Ordinal returns the 1-based ordinal of a stage name.
func Ordinal(name string) (int, error) {
	ord, ok := ordinals[name]
	if !ok {
		return 0, fmt.Errorf("unknown stage %q", name)
	}
	return ord, nil
}

// DirName returns the stage directory name "{ordinal:02d}_{name}".
func DirName(name string) (string, error) {
	ord, err := Ordinal(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d_%s", ord, name), nil
}

// NameFromOrdinal returns the stage name for a 1-based ordinal, or "" when
// the ordinal is out of range.
func NameFromOrdinal(ordinal int) string {
	if ordinal < 1 || ordinal > len(canonicalOrder) {
		return ""
	}
	return canonicalOrder[ordinal-1]
}

// StagesForWorkflow returns the ordered stage list for a workflow.
func StagesForWorkflow(workflow models.Workflow) ([]string, error) {
	n, ok := workflowLengths[workflow]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", workflow)
	}
	stages := make([]string, n)
	copy(stages, canonicalOrder[:n])
	return stages, nil
}

// AllStages returns the full canonical stage sequence.
func AllStages() []string {
	stages := make([]string, len(canonicalOrder))
	copy(stages, canonicalOrder)
	return stages
}
