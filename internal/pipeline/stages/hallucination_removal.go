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

// maxConsecutiveRepeats is how many identical consecutive segments survive
// before the rest are treated as decoder loops.
const maxConsecutiveRepeats = 2

// hallucinationRemovalStage strips recognizer artifacts from the translated
// transcripts: looping repeats and known junk phrases.
type hallucinationRemovalStage struct{ base }

func (s hallucinationRemovalStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	junkPhrases := st.Config.GetList("hallucination.phrases", []string{
		"thanks for watching",
		"subscribe to the channel",
	})
	h.SetConfig("junkPhrases", len(junkPhrases))

	removedTotal := 0
	for _, lang := range targetLanguages(st.Descriptor) {
		translationPath, err := requireInput(h, s.id, translationFilename(lang), registry.StageTranslation)
		if err != nil {
			return nil, err
		}
		var transcript collab.Transcript
		if err := readJSONFile(translationPath, &transcript); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading translation", err)
		}
		h.TrackInput(translationPath, models.FileKindTranscript, nil)

		cleaned, removed := removeHallucinations(transcript.Segments, junkPhrases)
		transcript.Segments = cleaned
		removedTotal += removed

		if _, err := writeOutput(h, cleanedFilename(lang), transcript, models.FileKindTranscript); err != nil {
			return nil, err
		}
	}

	h.SetConfig("removedSegments", removedTotal)
	if removedTotal > 0 {
		h.StageLogger().Info("hallucinations removed", "segments", removedTotal)
	}
	return core.Succeeded(), nil
}

// removeHallucinations drops junk-phrase segments and collapses runs of
// identical text beyond maxConsecutiveRepeats.
func removeHallucinations(segments []collab.Segment, junkPhrases []string) ([]collab.Segment, int) {
	kept := make([]collab.Segment, 0, len(segments))
	removed := 0
	repeats := 0
	prev := ""

	for _, seg := range segments {
		normalized := strings.ToLower(strings.TrimSpace(seg.Text))
		if normalized == "" || isJunkPhrase(normalized, junkPhrases) {
			removed++
			continue
		}
		if normalized == prev {
			repeats++
			if repeats >= maxConsecutiveRepeats {
				removed++
				continue
			}
		} else {
			repeats = 0
			prev = normalized
		}
		kept = append(kept, seg)
	}
	return kept, removed
}

func isJunkPhrase(normalized string, junkPhrases []string) bool {
	for _, phrase := range junkPhrases {
		if phrase != "" && strings.Contains(normalized, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
