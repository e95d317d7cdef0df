package stages

import (
	"context"
	"strings"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// lyricsMarker is one flagged transcript segment.
type lyricsMarker struct {
	Index  int     `json:"index"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason"`
}

// lyricsDetectionStage flags segments that look like song lyrics so
// subtitle generation can style or drop them. The heuristics are
// source-language specific; extra phrases come from configuration.
type lyricsDetectionStage struct{ base }

func (s lyricsDetectionStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	alignedPath, err := requireInput(h, s.id, alignedFilename, registry.StageAlignment)
	if err != nil {
		return nil, err
	}
	var transcript collab.Transcript
	if err := readJSONFile(alignedPath, &transcript); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading aligned transcript", err)
	}
	h.TrackInput(alignedPath, models.FileKindTranscript, nil)

	phrases := st.Config.GetList("lyrics.phrases", nil)
	h.SetConfig("extraPhrases", len(phrases))

	var markers []lyricsMarker
	for i, seg := range transcript.Segments {
		if reason := lyricsReason(seg.Text, phrases); reason != "" {
			markers = append(markers, lyricsMarker{Index: i, Start: seg.Start, End: seg.End, Reason: reason})
		}
	}

	if _, err := writeOutput(h, lyricsFilename, markers, models.FileKindData); err != nil {
		return nil, err
	}
	h.StageLogger().Info("lyrics detection complete",
		"segments", len(transcript.Segments),
		"flagged", len(markers),
	)
	return core.Succeeded(), nil
}

// lyricsReason reports why a segment looks like lyrics, or "" when it does
// not: an explicit music glyph, a configured phrase, or heavy word
// repetition.
func lyricsReason(text string, phrases []string) string {
	if strings.ContainsAny(text, "♪♫") {
		return "music glyph"
	}
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return "configured phrase"
		}
	}

	words := strings.Fields(lower)
	if len(words) >= 6 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.Trim(w, ".,!?")] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.5 {
			return "repetitive wording"
		}
	}
	return ""
}
