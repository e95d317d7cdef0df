package stages

import (
	"context"
	"os"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// sourceSeparationStage splits the demuxed audio into vocals and
// accompaniment so recognition can work on clean speech.
type sourceSeparationStage struct{ base }

func (s sourceSeparationStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	sep := st.Descriptor.SourceSeparation
	if sep == nil || !sep.Enabled {
		return core.Skipped("source separation disabled"), nil
	}

	audioPath, err := requireInput(h, s.id, audioFilename, registry.StageDemux)
	if err != nil {
		return nil, err
	}
	h.TrackInput(audioPath, models.FileKindAudio, nil)

	// Separate against a private copy so the separator's sibling outputs
	// land inside this stage's directory.
	workCopy := h.OutputPath("input.wav")
	if err := copyFile(audioPath, workCopy); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "staging separation input", err)
	}
	h.TrackIntermediate(workCopy, true, "separation working copy")

	quality := sep.Quality
	if quality == "" {
		quality = "balanced"
	}
	h.SetConfig("quality", quality)

	result, err := st.Collab.Separator.Separate(ctx, workCopy, quality)
	if err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "separating audio", err)
	}

	for _, move := range []struct{ src, dst string }{
		{result.VocalsPath, h.OutputPath(vocalsFilename)},
		{result.AccompanimentPath, h.OutputPath(accompanimentFilename)},
	} {
		if move.src != move.dst {
			if err := os.Rename(move.src, move.dst); err != nil {
				return nil, core.NewStageError(core.KindInternalConsistency, s.id, "collecting separated audio", err)
			}
		}
		h.TrackOutput(move.dst, models.FileKindAudio, nil)
	}

	return core.Succeeded(), nil
}
