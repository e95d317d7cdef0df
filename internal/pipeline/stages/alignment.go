package stages

import (
	"context"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// alignmentStage diarizes the audio and attributes each transcript segment
// to the speaker with the greatest temporal overlap.
type alignmentStage struct{ base }

func (s alignmentStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	transcriptPath, err := requireInput(h, s.id, transcriptFilename, registry.StageAsr)
	if err != nil {
		return nil, err
	}
	var transcript collab.Transcript
	if err := readJSONFile(transcriptPath, &transcript); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading transcript", err)
	}
	h.TrackInput(transcriptPath, models.FileKindTranscript, nil)

	audioPath, err := recognitionAudio(h, s.id)
	if err != nil {
		return nil, err
	}
	h.TrackInput(audioPath, models.FileKindAudio, nil)

	minSpeakers := st.Config.GetInt("diarization.min_speakers", 0)
	maxSpeakers := st.Config.GetInt("diarization.max_speakers", 0)
	h.SetConfig("minSpeakers", minSpeakers)
	h.SetConfig("maxSpeakers", maxSpeakers)

	turns, err := st.Collab.Diarizer.Diarize(ctx, audioPath, minSpeakers, maxSpeakers)
	if err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "diarizing", err)
	}

	for i := range transcript.Segments {
		transcript.Segments[i].Speaker = dominantSpeaker(transcript.Segments[i], turns)
	}

	if _, err := writeOutput(h, alignedFilename, transcript, models.FileKindTranscript); err != nil {
		return nil, err
	}
	return core.Succeeded(), nil
}

// dominantSpeaker picks the speaker whose turns overlap the segment most.
func dominantSpeaker(seg collab.Segment, turns []collab.SpeakerTurn) string {
	overlaps := make(map[string]float64)
	for _, turn := range turns {
		start := max(seg.Start, turn.Start)
		end := min(seg.End, turn.End)
		if end > start {
			overlaps[turn.Speaker] += end - start
		}
	}
	best, bestOverlap := "", 0.0
	for speaker, overlap := range overlaps {
		if overlap > bestOverlap || (overlap == bestOverlap && (best == "" || speaker < best)) {
			best, bestOverlap = speaker, overlap
		}
	}
	return best
}
