package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearpath-media/cp-whisperx/internal/database"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/repository"
)

var (
	runsLimit  int
	runsUserID int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show pipeline run history",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to show")
	runsCmd.Flags().IntVar(&runsUserID, "user", 0, "only this user's runs")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	db, err := database.New(appCfg.Database, appCfg.DatabaseDSN(), slog.Default())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // nothing to do on close failure

	repo := repository.NewRunRepository(db.DB)
	ctx := cmd.Context()

	var runs []*models.PipelineRun
	if runsUserID > 0 {
		runs, err = repo.GetByUser(ctx, runsUserID, runsLimit)
	} else {
		runs, err = repo.GetRecent(ctx, runsLimit)
	}
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-20s user %-3d %-10s %-9s %2d/%2d stages (%d resumed)  $%.4f  %s\n",
			run.StartedAt.Format(time.RFC3339), run.JobID, run.UserID,
			run.Workflow, run.Status,
			run.StagesCompleted, run.StagesTotal, run.StagesSkipped,
			run.CostUsd, run.Duration.Round(time.Millisecond))
	}
	return nil
}
