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

// translationStage translates the aligned transcript into every target
// language, applying the glossary to the translated text.
type translationStage struct{ base }

// defaultEstimatedTokens stands in for the transcript size before any audio
// has been processed; translation.estimated_tokens overrides it.
const defaultEstimatedTokens = 8000

// EstimateCost projects the translation spend for the budget pre-gate:
// input plus output tokens per target language, priced at the mean rate.
func (s translationStage) EstimateCost(st *core.State) float64 {
	service := st.Config.GetString("translation.service", "local")
	model := translationModel(st.Descriptor)
	tokens := st.Config.GetInt("translation.estimated_tokens", defaultEstimatedTokens)

	var total float64
	for range targetLanguages(st.Descriptor) {
		total += st.Costs.EstimateCost(service, model, tokens*2)
	}
	return total
}

// translationModel picks the descriptor's model, defaulting to the local
// NLLB checkpoint.
func translationModel(d *models.JobDescriptor) string {
	if d.Translation != nil && d.Translation.Model != "" {
		return d.Translation.Model
	}
	return "nllb-200"
}

func (s translationStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	alignedPath, err := requireInput(h, s.id, alignedFilename, registry.StageAlignment)
	if err != nil {
		return nil, err
	}
	var transcript collab.Transcript
	if err := readJSONFile(alignedPath, &transcript); err != nil {
		return nil, core.NewStageError(core.KindInternalConsistency, s.id, "reading aligned transcript", err)
	}
	h.TrackInput(alignedPath, models.FileKindTranscript, nil)

	model := translationModel(st.Descriptor)
	service := st.Config.GetString("translation.service", "local")
	h.SetConfig("model", model)
	h.SetConfig("service", service)

	texts := make([]string, len(transcript.Segments))
	tokens := 0
	for i, seg := range transcript.Segments {
		texts[i] = seg.Text
		tokens += len(strings.Fields(seg.Text))
	}

	for _, lang := range targetLanguages(st.Descriptor) {
		h.AddConfig("targetLanguages", lang)

		translated, err := st.Collab.Translator.TranslateBatch(ctx, texts, st.Descriptor.SourceLanguage, lang)
		if err != nil {
			return nil, core.NewStageError(core.KindExternalService, s.id, "translating to "+lang, err)
		}
		if len(translated) != len(texts) {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id,
				"translator returned a batch of the wrong size", nil)
		}

		out := collab.Transcript{Language: lang, Segments: make([]collab.Segment, len(transcript.Segments))}
		for i, seg := range transcript.Segments {
			seg.Text = translated[i]
			if st.Glossary != nil {
				seg.Text = st.Glossary.ApplyToText(seg.Text, "")
			}
			seg.Words = nil
			out.Segments[i] = seg
		}

		if _, err := writeOutput(h, translationFilename(lang), out, models.FileKindTranscript); err != nil {
			return nil, err
		}
		if _, err := st.Costs.LogUsage(service, model, tokens, tokens, s.id,
			map[string]any{"targetLanguage": lang}); err != nil {
			h.AddWarning("recording usage: " + err.Error())
		}
	}

	return core.Succeeded(), nil
}
