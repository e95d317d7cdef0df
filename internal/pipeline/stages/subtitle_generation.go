package stages

import (
	"context"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

// subtitleGenerationStage renders a SubRip file per target language from
// the cleaned translations.
type subtitleGenerationStage struct{ base }

func (s subtitleGenerationStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	for _, lang := range targetLanguages(st.Descriptor) {
		cleanedPath, err := requireInput(h, s.id, cleanedFilename(lang), registry.StageHallucinationRemoval)
		if err != nil {
			return nil, err
		}
		var transcript collab.Transcript
		if err := readJSONFile(cleanedPath, &transcript); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading cleaned translation", err)
		}
		h.TrackInput(cleanedPath, models.FileKindTranscript, nil)

		srtPath := h.OutputPath(subtitleFilename(lang))
		if err := storage.WriteFileAtomic(srtPath, []byte(renderSRT(transcript.Segments))); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "writing subtitles", err)
		}
		h.TrackOutput(srtPath, models.FileKindSubtitle, map[string]any{"language": lang})
	}
	return core.Succeeded(), nil
}
