package stages

import (
	"context"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// vadStage detects speech intervals so recognition can skip silence and
// music-only spans.
type vadStage struct{ base }

func (s vadStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	vad := st.Descriptor.Vad
	if vad == nil || !vad.Enabled {
		return core.Skipped("vad disabled"), nil
	}

	audioPath, err := recognitionAudio(h, s.id)
	if err != nil {
		return nil, err
	}
	h.TrackInput(audioPath, models.FileKindAudio, nil)

	threshold := 0.0
	if vad.Threshold != nil {
		threshold = *vad.Threshold
	}
	h.SetConfig("threshold", threshold)

	spans, err := st.Collab.Vad.Detect(ctx, audioPath, threshold)
	if err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "detecting speech", err)
	}

	if _, err := writeOutput(h, speechSpansFilename, spans, models.FileKindData); err != nil {
		return nil, err
	}
	return core.Succeeded(), nil
}
