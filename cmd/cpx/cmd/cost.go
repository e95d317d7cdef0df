package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clearpath-media/cp-whisperx/internal/costs"
)

var (
	costUserID int
	costMonth  string
	costJobID  string
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show metered usage and spend",
	Long: `Show a user's metered external-service spend.

Without --job, prints the monthly summary (current month unless --month is
given). With --job, prints that job's total and per-stage costs.`,
	RunE: runCost,
}

func init() {
	costCmd.Flags().IntVar(&costUserID, "user", 0, "user id (required)")
	costCmd.Flags().StringVar(&costMonth, "month", "", "month to summarize (YYYY-MM, default current)")
	costCmd.Flags().StringVar(&costJobID, "job", "", "job id to break down")
	_ = costCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(costCmd)
}

func runCost(_ *cobra.Command, _ []string) error {
	pricing, err := loadPricing()
	if err != nil {
		return err
	}
	tracker, err := costs.NewTracker(appCfg.Storage.CostsPath(), pricing, costUserID,
		costs.WithTrackerLogger(slog.Default()))
	if err != nil {
		return err
	}

	if costJobID != "" {
		total, err := tracker.GetJobCost(costJobID)
		if err != nil {
			return err
		}
		stageCosts, err := tracker.GetStageCosts(costJobID)
		if err != nil {
			return err
		}
		fmt.Printf("job %s: $%.4f\n", costJobID, total)
		for _, stage := range sortedKeys(stageCosts) {
			fmt.Printf("  %-22s $%.4f\n", stage, stageCosts[stage])
		}
		return nil
	}

	summary, err := tracker.GetMonthlySummary(costMonth)
	if err != nil {
		return err
	}
	fmt.Printf("month %s: $%.4f across %d calls, %d tokens, %d jobs (avg $%.4f/job)\n",
		summary.Month, summary.TotalCost, summary.TotalCalls,
		summary.TotalTokens, summary.UniqueJobs, summary.AvgCostPerJob)
	for _, service := range sortedKeys(summary.ByService) {
		fmt.Printf("  %-12s $%.4f\n", service, summary.ByService[service])
	}

	if costMonth != "" {
		return nil
	}
	// Budget alerts always reflect the current month.
	store, err := newUserStore(slog.Default())
	if err != nil {
		return err
	}
	if profile, err := store.Load(costUserID); err == nil {
		alerts, err := tracker.CheckBudgetAlerts(profile.Budget)
		if err == nil {
			for _, alert := range alerts {
				fmt.Println("!", alert)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
