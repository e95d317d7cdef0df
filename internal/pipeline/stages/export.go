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

// exportStage renders the translated transcripts as plain text, the
// terminal artifacts of the translate workflow.
type exportStage struct{ base }

func (s exportStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
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

		txtPath := h.OutputPath("transcript_" + lang + ".txt")
		if err := storage.WriteFileAtomic(txtPath, []byte(renderPlainText(transcript.Segments))); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "writing translated text", err)
		}
		h.TrackOutput(txtPath, models.FileKindTranscript, map[string]any{"language": lang})
	}
	return core.Succeeded(), nil
}
