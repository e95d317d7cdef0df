package costs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestTracker(t *testing.T, opts ...TrackerOption) *Tracker {
	t.Helper()
	opts = append([]TrackerOption{
		WithClock(fixedClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))),
	}, opts...)
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "costs"), DefaultTable(), 1, opts...)
	require.NoError(t, err)
	return tracker
}

func TestTableCost(t *testing.T) {
	table := DefaultTable()

	cost, ok := table.Cost("openai", "gpt-4o", 1000, 200)
	require.True(t, ok)
	assert.InDelta(t, 0.0045, cost, 1e-9)

	cost, ok = table.Cost("openai", "gpt-4", 1000, 200)
	require.True(t, ok)
	assert.InDelta(t, 0.042, cost, 1e-9)

	cost, ok = table.Cost("local", "whisper-large-v3", 50000, 0)
	require.True(t, ok)
	assert.Zero(t, cost)

	_, ok = table.Cost("openai", "no-such-model", 100, 100)
	assert.False(t, ok)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"openai:\n  gpt-4:\n    input_per_1k: 0.01\n    output_per_1k: 0.02\n"), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	cost, ok := table.Cost("openai", "gpt-4", 1000, 1000)
	require.True(t, ok)
	assert.InDelta(t, 0.03, cost, 1e-9)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogUsage_AppendsToMonthlyLog(t *testing.T) {
	tracker := newTestTracker(t, WithJobID("job-001"))

	cost, err := tracker.LogUsage("openai", "gpt-4o", 1000, 200, "translation", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0045, cost, 1e-9)

	cost, err = tracker.LogUsage("openai", "gpt-4", 1000, 200, "translation", map[string]any{"batch": 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.042, cost, 1e-9)

	log, err := tracker.readMonth("2026-08")
	require.NoError(t, err)
	require.Len(t, log.Entries, 2)
	assert.Equal(t, "2026-08", log.Metadata.Month)
	assert.Equal(t, "job-001", log.Entries[0].JobID)
	assert.Equal(t, 1200, log.Entries[0].TokensTotal)
	assert.NotEmpty(t, log.Entries[0].ID)

	// Appending preserves earlier entries.
	total, err := tracker.GetJobCost("job-001")
	require.NoError(t, err)
	assert.InDelta(t, 0.0465, total, 1e-9)
}

func TestLogUsage_UnknownModelRecordsZero(t *testing.T) {
	tracker := newTestTracker(t)

	cost, err := tracker.LogUsage("openai", "experimental-model", 500, 500, "", nil)
	require.NoError(t, err)
	assert.Zero(t, cost)

	log, err := tracker.readMonth("2026-08")
	require.NoError(t, err)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, 1000, log.Entries[0].TokensTotal)
}

func TestGetJobCost_SpansMonthBoundary(t *testing.T) {
	current := time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC)
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "costs"), DefaultTable(), 1,
		WithJobID("job-long"),
		WithClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 0, "translation", nil)
	require.NoError(t, err)

	// The job keeps running past midnight into September.
	current = time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC)
	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 0, "translation", nil)
	require.NoError(t, err)

	total, err := tracker.GetJobCost("job-long")
	require.NoError(t, err)
	assert.InDelta(t, 0.06, total, 1e-9)

	byStage, err := tracker.GetStageCosts("job-long")
	require.NoError(t, err)
	assert.InDelta(t, 0.06, byStage["translation"], 1e-9)
}

func TestGetMonthlyCost(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.LogUsage("openai", "gpt-4", 1000, 0, "", nil)
	require.NoError(t, err)
	_, err = tracker.LogUsage("openai", "gpt-4", 0, 1000, "", nil)
	require.NoError(t, err)

	total, err := tracker.GetMonthlyCost("")
	require.NoError(t, err)
	assert.InDelta(t, 0.09, total, 1e-9)

	// Absent months read as empty, not as an error.
	total, err = tracker.GetMonthlyCost("2026-01")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetStageCosts(t *testing.T) {
	tracker := newTestTracker(t, WithJobID("job-002"))

	_, err := tracker.LogUsage("openai", "gpt-4", 1000, 0, "translation", nil)
	require.NoError(t, err)
	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 0, "lyrics_detection", nil)
	require.NoError(t, err)
	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 0, "", nil)
	require.NoError(t, err)

	byStage, err := tracker.GetStageCosts("job-002")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, byStage["translation"], 1e-9)
	assert.InDelta(t, 0.03, byStage["lyrics_detection"], 1e-9)
	assert.InDelta(t, 0.03, byStage["unattributed"], 1e-9)
}

func TestGetMonthlySummary(t *testing.T) {
	tracker := newTestTracker(t, WithJobID("job-a"))

	_, err := tracker.LogUsage("openai", "gpt-4", 1000, 200, "translation", nil)
	require.NoError(t, err)
	_, err = tracker.LogUsage("gemini", "gemini-1.5-flash", 2000, 0, "lyrics_detection", nil)
	require.NoError(t, err)

	summary, err := tracker.GetMonthlySummary("")
	require.NoError(t, err)
	assert.Equal(t, "2026-08", summary.Month)
	assert.Equal(t, 2, summary.TotalCalls)
	assert.Equal(t, 3200, summary.TotalTokens)
	assert.Equal(t, 1, summary.UniqueJobs)
	assert.InDelta(t, 0.04215, summary.TotalCost, 1e-9)
	assert.InDelta(t, summary.TotalCost, summary.AvgCostPerJob, 1e-9)
	assert.InDelta(t, 0.042, summary.ByService["openai"], 1e-9)
	assert.InDelta(t, 0.00015, summary.ByService["gemini"], 1e-9)
}

func TestBudgetAlerts(t *testing.T) {
	tracker := newTestTracker(t)
	budget := models.Budget{MonthlyLimitUsd: 0.05, AlertThresholdPercent: 80}

	alerts, err := tracker.CheckBudgetAlerts(budget)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// $0.042 of $0.05 is 84%, over the 80% threshold but under the limit.
	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 200, "", nil)
	require.NoError(t, err)

	alerts, err = tracker.CheckBudgetAlerts(budget)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "WARNING")
	assert.Contains(t, alerts[0], "84%")

	over, err := tracker.IsOverBudget(budget)
	require.NoError(t, err)
	assert.False(t, over)

	// Another call pushes spend past the limit.
	_, err = tracker.LogUsage("openai", "gpt-4", 1000, 200, "", nil)
	require.NoError(t, err)

	alerts, err = tracker.CheckBudgetAlerts(budget)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "CRITICAL")

	over, err = tracker.IsOverBudget(budget)
	require.NoError(t, err)
	assert.True(t, over)
}

func TestBudgetDisabledWhenLimitZero(t *testing.T) {
	tracker := newTestTracker(t)
	_, err := tracker.LogUsage("openai", "gpt-4", 100000, 100000, "", nil)
	require.NoError(t, err)

	over, err := tracker.IsOverBudget(models.Budget{})
	require.NoError(t, err)
	assert.False(t, over)

	alerts, err := tracker.CheckBudgetAlerts(models.Budget{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEstimateCost(t *testing.T) {
	tracker := newTestTracker(t)

	// Mean of gpt-4 rates is $0.045 per 1K tokens.
	assert.InDelta(t, 0.045, tracker.EstimateCost("openai", "gpt-4", 1000), 1e-9)
	assert.Zero(t, tracker.EstimateCost("local", "whisper-large-v3", 1000))
	assert.Zero(t, tracker.EstimateCost("openai", "no-such-model", 1000))
}
