package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clearpath-media/cp-whisperx/internal/collab/stub"
	"github.com/clearpath-media/cp-whisperx/internal/database"
	"github.com/clearpath-media/cp-whisperx/internal/glossary"
	"github.com/clearpath-media/cp-whisperx/internal/jobconfig"
	"github.com/clearpath-media/cp-whisperx/internal/media"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/stages"
	"github.com/clearpath-media/cp-whisperx/internal/repository"
)

var runNoHistory bool

// runCmd executes a job's workflow against its job directory.
var runCmd = &cobra.Command{
	Use:   "run <job-dir>",
	Short: "Run a job's workflow",
	Long: `Run the workflow declared in <job-dir>/job.json.

Completed stages whose outputs are intact are skipped, so re-running an
interrupted job resumes from the first incomplete stage. Ctrl-C cancels
the run cleanly; the job manifest records what finished.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "skip recording the run in the history database")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	jobDir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving job directory: %w", err)
	}

	descriptor, err := models.LoadJobDescriptor(jobDir)
	if err != nil {
		return err
	}

	// Correlation id ties together process logs, stage logs, and run history
	// when several cpx invocations share a job directory.
	logger := slog.Default().With(slog.String("correlation_id", uuid.NewString()))
	store, err := newUserStore(logger)
	if err != nil {
		return err
	}
	pricing, err := loadPricing()
	if err != nil {
		return err
	}

	resolver := jobconfig.NewResolver(
		jobconfig.WithLegacySecretsPath(legacySecretsPath()),
		jobconfig.WithLogger(logger),
	)

	opts := []core.RunnerOption{core.WithRunnerLogger(logger)}
	if !runNoHistory {
		db, err := database.New(appCfg.Database, appCfg.DatabaseDSN(), logger)
		if err != nil {
			logger.Warn("run history unavailable", slog.Any("error", err))
		} else {
			defer db.Close() //nolint:errcheck // nothing to do on close failure
			opts = append(opts, core.WithRunRecorder(repository.NewRunRepository(db.DB)))
		}
	}

	runner := core.NewRunner(store, resolver, pricing, appCfg.Storage.CostsPath(),
		stages.New, collaborators(), opts...)

	state := &core.State{}
	state.Media, err = media.NewAdapter(appCfg.Storage.DownloadPath(), stub.Downloader{}, logger)
	if err != nil {
		return err
	}
	state.Glossary, err = buildGlossary(resolver, jobDir, descriptor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, err := runner.Run(ctx, jobDir, descriptor.Workflow, state)
	if err != nil {
		return err
	}

	fmt.Printf("job %s (%s) complete: %d stages, $%.4f, %s\n",
		manifest.JobID, manifest.Workflow, len(manifest.Stages),
		manifest.TotalCostUsd, manifest.EndTime.Sub(manifest.StartTime).Round(time.Millisecond))
	for _, stage := range manifest.Stages {
		fmt.Printf("  %-22s %s\n", stage.Stage, stage.Status)
	}
	return nil
}

// collaborators wires the model and tool bindings the stages call out to.
// The deterministic in-process bindings stand in until the external tool
// adapters ship; swap them here.
func collaborators() core.Collaborators {
	return core.Collaborators{
		Transcriber: stub.Transcriber{},
		Diarizer:    stub.Diarizer{},
		Vad:         stub.VadDetector{},
		Translator:  stub.Translator{},
		Downloader:  stub.Downloader{},
		Separator:   stub.SourceSeparator{},
		Summarizer:  stub.Summarizer{},
		Demuxer:     stub.AudioDemuxer{},
		Muxer:       stub.SubtitleMuxer{},
	}
}

// buildGlossary assembles the glossary manager for a job: the shared cache,
// the film identity from the job configuration, and the descriptor's
// enrichment file when present.
func buildGlossary(resolver *jobconfig.Resolver, jobDir string, descriptor *models.JobDescriptor) (*glossary.Manager, error) {
	cache, err := glossary.NewCache(appCfg.Storage.CachePath(),
		glossary.WithTTLDays(appCfg.Glossary.TTLDays))
	if err != nil {
		return nil, err
	}

	opts := []glossary.ManagerOption{
		glossary.WithLearning(appCfg.Glossary.LearningEnabled),
		glossary.WithManagerLogger(slog.Default()),
	}

	cfg, err := resolver.Resolve(jobDir)
	if err != nil {
		return nil, err
	}
	if title := cfg.GetString("film.title", ""); title != "" {
		opts = append(opts, glossary.WithFilm(title, cfg.GetInt("film.year", 0)))
	}
	if descriptor.Glossary != nil && descriptor.Glossary.Path != "" {
		path := descriptor.Glossary.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(jobDir, path)
		}
		opts = append(opts, glossary.WithEnrichmentPath(path))
	}

	return glossary.NewManager(appCfg.Glossary.ProjectRoot, cache, opts...), nil
}
