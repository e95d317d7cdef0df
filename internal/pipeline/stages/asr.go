package stages

import (
	"context"
	"os"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
	"github.com/clearpath-media/cp-whisperx/internal/costs"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// asrStage transcribes the recognition audio, feeding glossary bias terms
// to the transcriber as a prior.
type asrStage struct{ base }

func (s asrStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	audioPath, err := recognitionAudio(h, s.id)
	if err != nil {
		return nil, err
	}
	h.TrackInput(audioPath, models.FileKindAudio, nil)

	opts := collab.TranscribeOptions{
		Model:     st.Config.GetString("asr.model", "large-v3"),
		BatchSize: st.Config.GetInt("asr.batch_size", 16),
	}

	biasPath := h.InputPath(biasTermsFilename, registry.StageGlossaryLoad)
	if _, err := os.Stat(biasPath); err == nil {
		if err := readJSONFile(biasPath, &opts.BiasTerms); err != nil {
			h.AddWarning("unreadable bias terms, transcribing without prior: " + err.Error())
		} else {
			h.TrackInput(biasPath, models.FileKindGlossary, nil)
		}
	}

	h.SetConfig("model", opts.Model)
	h.SetConfig("batchSize", opts.BatchSize)
	h.SetConfig("biasTerms", len(opts.BiasTerms))

	transcript, err := st.Collab.Transcriber.Transcribe(ctx, audioPath, st.Descriptor.SourceLanguage, opts)
	if err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "transcribing", err)
	}

	if _, err := writeOutput(h, transcriptFilename, transcript, models.FileKindTranscript); err != nil {
		return nil, err
	}

	// Local model execution is free but still metered for the usage trail.
	tokens := 0
	for _, seg := range transcript.Segments {
		tokens += len(seg.Words)
	}
	if _, err := st.Costs.LogUsage(costs.ServiceLocal, opts.Model, tokens, 0, s.id, nil); err != nil {
		h.AddWarning("recording usage: " + err.Error())
	}

	h.StageLogger().Info("transcription complete",
		"segments", len(transcript.Segments),
		"language", transcript.Language,
	)
	return core.Succeeded(), nil
}
