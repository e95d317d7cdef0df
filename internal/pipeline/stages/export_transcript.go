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

// exportTranscriptStage renders the aligned transcript as plain text and
// SubRip documents, the terminal artifacts of the transcribe workflow.
type exportTranscriptStage struct{ base }

func (s exportTranscriptStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	alignedPath, err := requireInput(h, s.id, alignedFilename, registry.StageAlignment)
	if err != nil {
		return nil, err
	}
	var transcript collab.Transcript
	if err := readJSONFile(alignedPath, &transcript); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading aligned transcript", err)
	}
	h.TrackInput(alignedPath, models.FileKindTranscript, nil)

	txtPath := h.OutputPath("transcript.txt")
	if err := storage.WriteFileAtomic(txtPath, []byte(renderPlainText(transcript.Segments))); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "writing transcript text", err)
	}
	h.TrackOutput(txtPath, models.FileKindTranscript, nil)

	srtPath := h.OutputPath("transcript.srt")
	if err := storage.WriteFileAtomic(srtPath, []byte(renderSRT(transcript.Segments))); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "writing transcript srt", err)
	}
	h.TrackOutput(srtPath, models.FileKindSubtitle, map[string]any{"language": st.Descriptor.SourceLanguage})

	return core.Succeeded(), nil
}
