package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

func TestOrdinal(t *testing.T) {
	ord, err := Ordinal(StageDemux)
	require.NoError(t, err)
	assert.Equal(t, 1, ord)

	ord, err = Ordinal(StageAsr)
	require.NoError(t, err)
	assert.Equal(t, 6, ord)

	ord, err = Ordinal(StageMux)
	require.NoError(t, err)
	assert.Equal(t, 14, ord)

	_, err = Ordinal("unknown")
	assert.Error(t, err)
}

func TestDirName(t *testing.T) {
	dir, err := DirName(StageDemux)
	require.NoError(t, err)
	assert.Equal(t, "01_demux", dir)

	dir, err = DirName(StageSubtitleGeneration)
	require.NoError(t, err)
	assert.Equal(t, "13_subtitle_generation", dir)

	_, err = DirName("unknown")
	assert.Error(t, err)
}

func TestNameFromOrdinal(t *testing.T) {
	assert.Equal(t, StageDemux, NameFromOrdinal(1))
	assert.Equal(t, StageMux, NameFromOrdinal(14))
	assert.Empty(t, NameFromOrdinal(0))
	assert.Empty(t, NameFromOrdinal(15))
}

func TestStagesForWorkflow(t *testing.T) {
	transcribe, err := StagesForWorkflow(models.WorkflowTranscribe)
	require.NoError(t, err)
	assert.Equal(t, []string{
		StageDemux, StageTmdb, StageGlossaryLoad, StageSourceSeparation,
		StageVad, StageAsr, StageAlignment, StageExportTranscript,
	}, transcribe)

	translate, err := StagesForWorkflow(models.WorkflowTranslate)
	require.NoError(t, err)
	assert.Equal(t, append(transcribe, StageTranslation, StageExport), translate)

	subtitle, err := StagesForWorkflow(models.WorkflowSubtitle)
	require.NoError(t, err)
	assert.Len(t, subtitle, 14)

	_, err = StagesForWorkflow(models.Workflow("publish"))
	assert.Error(t, err)
}

// Workflow stage lists must be strictly increasing prefixes of each other.
func TestWorkflowPrefixProperty(t *testing.T) {
	transcribe, err := StagesForWorkflow(models.WorkflowTranscribe)
	require.NoError(t, err)
	translate, err := StagesForWorkflow(models.WorkflowTranslate)
	require.NoError(t, err)
	subtitle, err := StagesForWorkflow(models.WorkflowSubtitle)
	require.NoError(t, err)

	require.Less(t, len(transcribe), len(translate))
	require.Less(t, len(translate), len(subtitle))

	assert.Equal(t, transcribe, translate[:len(transcribe)])
	assert.Equal(t, translate, subtitle[:len(translate)])
}

func TestOrdinalsAreStableAcrossWorkflows(t *testing.T) {
	for _, workflow := range []models.Workflow{models.WorkflowTranscribe, models.WorkflowTranslate, models.WorkflowSubtitle} {
		stages, err := StagesForWorkflow(workflow)
		require.NoError(t, err)
		for i, name := range stages {
			ord, err := Ordinal(name)
			require.NoError(t, err)
			assert.Equal(t, i+1, ord)
		}
	}
}
