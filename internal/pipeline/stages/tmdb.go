package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// tmdbStage pins down which film the job processes and stages the raw
// enrichment document for the glossary loader.
type tmdbStage struct{ base }

func (s tmdbStage) Execute(_ context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	film := resolveFilm(st)
	h.SetConfig("title", film.Title)
	h.SetConfig("year", film.Year)

	if _, err := writeOutput(h, filmFilename, film, models.FileKindMetadata); err != nil {
		return nil, err
	}

	// An enrichment document referenced by the descriptor is copied into
	// the stage so downstream stages read a finalized artifact.
	if st.Descriptor.Glossary != nil && st.Descriptor.Glossary.Path != "" {
		src := st.Descriptor.Glossary.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(st.JobDir, src)
		}
		if _, err := os.Stat(src); err != nil {
			h.AddWarning("configured enrichment file not found: " + src)
			return &core.StageResult{Status: models.StatusSuccessWithWarnings}, nil
		}
		h.TrackInput(src, models.FileKindGlossary, nil)
		dst := h.OutputPath(enrichmentFilename)
		if err := copyFile(src, dst); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "staging enrichment file", err)
		}
		h.TrackOutput(dst, models.FileKindGlossary, nil)
	}

	return core.Succeeded(), nil
}

// resolveFilm derives the film identity from, in order: explicit config,
// online media metadata, the input media filename.
func resolveFilm(st *core.State) filmInfo {
	film := filmInfo{
		Title: st.Config.GetString("film.title", ""),
		Year:  st.Config.GetInt("film.year", 0),
	}
	if film.Title == "" && st.Descriptor.YouTubeMetadata != nil {
		film.Title = st.Descriptor.YouTubeMetadata.Title
	}
	if film.Title == "" {
		name := filepath.Base(st.Descriptor.InputMedia)
		film.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return film
}
