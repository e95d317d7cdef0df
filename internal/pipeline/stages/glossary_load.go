package stages

import (
	"context"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// glossaryLoadStage loads every glossary tier and publishes the bias terms
// recognition stages feed to the transcriber.
type glossaryLoadStage struct{ base }

func (s glossaryLoadStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	if st.Glossary == nil {
		return core.Skipped("no glossary configured"), nil
	}

	if err := st.Glossary.LoadAllSources(); err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "loading glossary sources", err)
	}

	maxTerms := st.Config.GetInt("glossary.max_bias_terms", 100)
	h.SetConfig("maxBiasTerms", maxTerms)

	if _, err := writeOutput(h, biasTermsFilename, st.Glossary.GetBiasTerms(maxTerms), models.FileKindGlossary); err != nil {
		return nil, err
	}
	if _, err := writeOutput(h, glossaryStatsFilename, st.Glossary.GetStatistics(), models.FileKindMetadata); err != nil {
		return nil, err
	}
	return core.Succeeded(), nil
}
