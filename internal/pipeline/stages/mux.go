package stages

import (
	"context"
	"os"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// muxStage embeds the generated subtitle tracks into the source video, the
// terminal artifact of the subtitle workflow.
type muxStage struct{ base }

func (s muxStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	infoPath, err := requireInput(h, s.id, mediaInfoFilename, registry.StageDemux)
	if err != nil {
		return nil, err
	}
	var info mediaInfo
	if err := readJSONFile(infoPath, &info); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading media info", err)
	}
	if _, err := os.Stat(info.LocalPath); err != nil {
		return nil, core.NewStageError(core.KindMissingInput, s.id, "source video no longer present", err)
	}
	h.TrackInput(info.LocalPath, models.FileKindVideo, nil)

	var subtitlePaths []string
	for _, lang := range targetLanguages(st.Descriptor) {
		srtPath, err := requireInput(h, s.id, subtitleFilename(lang), registry.StageSubtitleGeneration)
		if err != nil {
			return nil, err
		}
		h.TrackInput(srtPath, models.FileKindSubtitle, map[string]any{"language": lang})
		subtitlePaths = append(subtitlePaths, srtPath)
	}

	outputPath := h.OutputPath(muxedFilename)
	if err := st.Collab.Muxer.Mux(ctx, info.LocalPath, subtitlePaths, outputPath); err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "muxing subtitles", err)
	}
	h.TrackOutput(outputPath, models.FileKindVideo, map[string]any{"subtitleTracks": len(subtitlePaths)})

	h.StageLogger().Info("muxed subtitled video", "output", outputPath)
	return core.Succeeded(), nil
}
