package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/clearpath-media/cp-whisperx/internal/costs"
	"github.com/clearpath-media/cp-whisperx/internal/jobconfig"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/observability"
	"github.com/clearpath-media/cp-whisperx/internal/registry"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
	"github.com/clearpath-media/cp-whisperx/internal/users"
)

// RunRecorder persists run history. Implementations must tolerate being
// called after a failed run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.PipelineRun) error
}

// Runner executes workflows: it resolves configuration, gates on budget,
// sequences stages with hash-verified resume, and writes the job manifest.
type Runner struct {
	users    *users.Store
	resolver *jobconfig.Resolver
	pricing  costs.Table
	costsDir string
	factory  Factory
	collab   Collaborators
	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunRecorder enables run-history persistence.
func WithRunRecorder(recorder RunRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = recorder }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerClock overrides the runner clock.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(userStore *users.Store, resolver *jobconfig.Resolver, pricing costs.Table, costsDir string, factory Factory, collaborators Collaborators, opts ...RunnerOption) *Runner {
	r := &Runner{
		users:    userStore,
		resolver: resolver,
		pricing:  pricing,
		costsDir: costsDir,
		factory:  factory,
		collab:   collaborators,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the workflow's stages against jobDir and returns the job
// manifest. The manifest is written even when the run fails partway; no
// stage manifest is written when the budget pre-gate rejects the run.
func (r *Runner) Run(ctx context.Context, jobDir string, workflow models.Workflow, state *State) (*models.JobManifest, error) {
	start := r.now().UTC()
	runID := ulid.Make().String()

	stageNames, err := registry.StagesForWorkflow(workflow)
	if err != nil {
		return nil, NewStageError(KindInvalidConfig, "", "resolving workflow", err)
	}

	if err := r.prepare(jobDir, workflow, stageNames, state); err != nil {
		return nil, err
	}

	logger := observability.WithJob(r.logger, state.Descriptor.JobID)
	state.Logger = logger
	logger.Info("starting workflow",
		slog.String("workflow", string(workflow)),
		slog.String("run_id", runID),
		slog.Int("stages", len(stageNames)),
	)

	manifest := &models.JobManifest{
		JobID:     state.Descriptor.JobID,
		RunID:     runID,
		Workflow:  workflow,
		StartTime: start,
		Status:    models.StatusSuccess,
		Host:      hostSnapshot(),
	}

	runErr := r.runStages(ctx, stageNames, state, manifest, logger)
	if runErr != nil {
		manifest.Status = models.StatusFailed
	}

	manifest.EndTime = r.now().UTC()
	if cost, err := state.Costs.GetJobCost(state.Descriptor.JobID); err == nil {
		manifest.TotalCostUsd = cost
	}

	if err := writeJobManifest(jobDir, manifest); err != nil {
		logger.Error("writing job manifest", slog.Any("error", err))
		if runErr == nil {
			runErr = err
		}
	}

	r.recordRun(ctx, state, manifest, len(stageNames), runErr)
	if runErr != nil {
		return manifest, runErr
	}
	logger.Info("workflow complete",
		slog.Float64("total_cost_usd", manifest.TotalCostUsd),
		slog.Duration("duration", manifest.EndTime.Sub(manifest.StartTime)),
	)
	return manifest, nil
}

// prepare resolves configuration, loads and validates the profile, binds
// the cost tracker and applies the budget pre-gate.
func (r *Runner) prepare(jobDir string, workflow models.Workflow, stageNames []string, state *State) error {
	cfg, err := r.resolver.Resolve(jobDir)
	if err != nil {
		return NewStageError(KindInvalidConfig, "", "resolving job configuration", err)
	}
	descriptor := cfg.Descriptor()
	if descriptor == nil {
		return NewStageError(KindInvalidConfig, "", fmt.Sprintf("no %s in %s", models.DescriptorFilename, jobDir), nil)
	}
	if descriptor.Workflow != workflow {
		return NewStageError(KindInvalidConfig, "",
			fmt.Sprintf("descriptor workflow %q does not match requested %q", descriptor.Workflow, workflow), nil)
	}

	profile, err := r.users.Load(descriptor.UserID)
	if err != nil {
		return NewStageError(KindInvalidProfile, "", "loading user profile", err)
	}
	if err := users.ValidateForWorkflow(profile, workflow); err != nil {
		return NewStageError(KindMissingCredential, "", "validating credentials", err)
	}

	tracker, err := costs.NewTracker(r.costsDir, r.pricing, profile.UserID,
		costs.WithJobID(descriptor.JobID),
		costs.WithBudget(profile.Budget),
		costs.WithTrackerLogger(r.logger),
	)
	if err != nil {
		return NewStageError(KindInvalidConfig, "", "initializing cost tracker", err)
	}

	over, err := tracker.IsOverBudget(profile.Budget)
	if err != nil {
		return NewStageError(KindInvalidConfig, "", "checking budget", err)
	}
	if over {
		return NewStageError(KindBudgetExceeded, "",
			fmt.Sprintf("user %d has exhausted the monthly budget of $%.2f", profile.UserID, profile.Budget.MonthlyLimitUsd), nil)
	}
	if alerts, err := tracker.CheckBudgetAlerts(profile.Budget); err == nil {
		for _, alert := range alerts {
			r.logger.Warn("budget alert", slog.String("alert", alert))
		}
	}

	state.JobDir = jobDir
	state.Descriptor = descriptor
	state.Config = cfg
	state.Profile = profile
	state.Costs = tracker
	state.Collab = r.collab

	r.warnOnEstimate(stageNames, state, profile.Budget)
	return nil
}

// warnOnEstimate projects the upcoming run's cost through the stages'
// estimators and warns when the month's spend plus the estimate would cross
// the alert threshold. Spend already past the threshold is covered by
// CheckBudgetAlerts above.
func (r *Runner) warnOnEstimate(stageNames []string, state *State, budget models.Budget) {
	if budget.MonthlyLimitUsd <= 0 || budget.AlertThresholdPercent <= 0 {
		return
	}
	var estimate float64
	for _, name := range stageNames {
		stage, err := r.factory(name)
		if err != nil {
			continue
		}
		if estimator, ok := stage.(CostEstimator); ok {
			estimate += estimator.EstimateCost(state)
		}
	}
	if estimate <= 0 {
		return
	}

	spent, err := state.Costs.GetMonthlyCost("")
	if err != nil {
		return
	}
	threshold := budget.MonthlyLimitUsd * float64(budget.AlertThresholdPercent) / 100
	if spent < threshold && spent+estimate >= threshold {
		r.logger.Warn("estimated run cost would cross the budget alert threshold",
			slog.Float64("spent_usd", spent),
			slog.Float64("estimate_usd", estimate),
			slog.Float64("threshold_usd", threshold),
			slog.Float64("limit_usd", budget.MonthlyLimitUsd),
		)
	}
}

func (r *Runner) runStages(ctx context.Context, stageNames []string, state *State, manifest *models.JobManifest, logger *slog.Logger) error {
	for _, name := range stageNames {
		stageStart := r.now()

		if skip, reason := r.canSkip(state.JobDir, name); skip {
			logger.Info("stage skipped on resume",
				slog.String("stage", name),
				slog.String("reason", reason),
			)
			manifest.Stages = append(manifest.Stages, models.StageSummary{
				Stage:  name,
				Status: models.StatusSkippedIdempotent,
			})
			continue
		}

		done := observability.TimedOperation(ctx, observability.WithStage(logger, name), name)
		summary, err := r.executeStage(ctx, name, state)
		done()
		summary.Duration = r.now().Sub(stageStart).Seconds()
		manifest.Stages = append(manifest.Stages, summary)
		if err != nil {
			observability.WithError(logger, err).Error("stage failed",
				slog.String("stage", name),
				slog.String("kind", string(KindOf(err))),
			)
			return err
		}
	}
	return nil
}

func (r *Runner) executeStage(ctx context.Context, name string, state *State) (models.StageSummary, error) {
	summary := models.StageSummary{Stage: name, Status: models.StatusFailed}

	stage, err := r.factory(name)
	if err != nil {
		return summary, NewStageError(KindInvalidConfig, name, "constructing stage", err)
	}

	handle, err := stageio.Open(name, state.JobDir, stageio.OpenOptions{
		JobID:          state.Descriptor.JobID,
		EnableManifest: true,
		Logger:         state.Logger,
	})
	if err != nil {
		return summary, NewStageError(KindInternalConsistency, name, "opening stage io", err)
	}

	defer func() {
		if cleanupErr := stage.Cleanup(state); cleanupErr != nil {
			state.Logger.Warn("stage cleanup", slog.String("stage", name), slog.Any("error", cleanupErr))
		}
	}()

	result, execErr := stage.Execute(ctx, state, handle)

	if ctxErr := ctx.Err(); ctxErr != nil {
		handle.AddError("cancelled", ctxErr)
		if err := handle.Finalize(models.StatusFailed); err != nil {
			state.Logger.Warn("finalizing cancelled stage", slog.Any("error", err))
		}
		return summary, NewStageError(KindCancelled, name, "workflow cancelled", ctxErr)
	}

	if execErr != nil {
		handle.AddError(execErr.Error(), errors.Unwrap(execErr))
		if err := handle.Finalize(models.StatusFailed); err != nil {
			state.Logger.Warn("finalizing failed stage", slog.Any("error", err))
		}
		var stageErr *StageError
		if errors.As(execErr, &stageErr) {
			return summary, execErr
		}
		return summary, NewStageError(KindExternalService, name, "stage execution", execErr)
	}

	if result == nil {
		result = Succeeded()
	}
	if err := handle.Finalize(result.Status); err != nil {
		return summary, NewStageError(KindInternalConsistency, name, "finalizing stage", err)
	}

	summary.Status = result.Status
	return summary, nil
}

// canSkip reports whether a stage can be skipped on resume: its manifest
// exists with a success status and every tracked output still exists with a
// matching hash. Any inconsistency is treated as a cache miss.
func (r *Runner) canSkip(jobDir, stageName string) (bool, string) {
	dirName, err := registry.DirName(stageName)
	if err != nil {
		return false, ""
	}
	manifest, err := stageio.ReadManifest(filepath.Join(jobDir, dirName))
	if err != nil {
		return false, ""
	}
	if manifest.Status != models.StatusSuccess && manifest.Status != models.StatusSuccessWithWarnings {
		return false, ""
	}
	for _, output := range manifest.Outputs {
		hash, err := stageio.HashFile(output.Path)
		if err != nil || hash != output.Hash {
			return false, ""
		}
	}
	return true, "previous outputs intact"
}

func (r *Runner) recordRun(ctx context.Context, state *State, manifest *models.JobManifest, stagesTotal int, runErr error) {
	if r.recorder == nil {
		return
	}
	status := models.RunStatusSucceeded
	switch {
	case runErr != nil && KindOf(runErr) == KindCancelled:
		status = models.RunStatusCancelled
	case runErr != nil:
		status = models.RunStatusFailed
	}

	completed, skipped := 0, 0
	for _, stage := range manifest.Stages {
		switch stage.Status {
		case models.StatusSkippedIdempotent:
			skipped++
		case models.StatusSuccess, models.StatusSuccessWithWarnings, models.StatusSkipped:
			completed++
		}
	}

	run := &models.PipelineRun{
		JobID:           manifest.JobID,
		UserID:          state.Profile.UserID,
		Workflow:        string(manifest.Workflow),
		Status:          status,
		StagesTotal:     stagesTotal,
		StagesCompleted: completed,
		StagesSkipped:   skipped,
		CostUsd:         manifest.TotalCostUsd,
		Duration:        manifest.EndTime.Sub(manifest.StartTime),
		StartedAt:       manifest.StartTime,
		FinishedAt:      manifest.EndTime,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := r.recorder.RecordRun(ctx, run); err != nil {
		r.logger.Warn("recording run history", slog.Any("error", err))
	}
}

func writeJobManifest(jobDir string, manifest *models.JobManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job manifest: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(jobDir, "manifest.json"), data); err != nil {
		return fmt.Errorf("writing job manifest: %w", err)
	}
	return nil
}

// hostSnapshot captures the host facts recorded in the job manifest.
// Failures degrade to a partial snapshot.
func hostSnapshot() *models.HostInfo {
	info := &models.HostInfo{CPUCount: runtime.NumCPU()}
	if h, err := host.Info(); err == nil {
		info.Platform = fmt.Sprintf("%s %s (%s)", h.Platform, h.PlatformVersion, h.KernelArch)
	} else {
		info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalB = vm.Total
		info.MemoryUsedPc = vm.UsedPercent
	}
	return info
}
