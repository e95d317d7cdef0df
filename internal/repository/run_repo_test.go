package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/config"
	"github.com/clearpath-media/cp-whisperx/internal/database"
	"github.com/clearpath-media/cp-whisperx/internal/models"
)

func testRepo(t *testing.T) *RunRepository {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.New(
		config.DatabaseConfig{Driver: "sqlite", LogLevel: "silent"},
		filepath.Join(t.TempDir(), "cpx.db"),
		quiet,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRunRepository(db.DB)
}

func sampleRun(jobID string, userID int, status string, startedAt time.Time) *models.PipelineRun {
	return &models.PipelineRun{
		JobID:           jobID,
		UserID:          userID,
		Workflow:        string(models.WorkflowTranslate),
		Status:          status,
		StagesTotal:     10,
		StagesCompleted: 10,
		CostUsd:         0.12,
		Duration:        3 * time.Minute,
		StartedAt:       startedAt,
		FinishedAt:      startedAt.Add(3 * time.Minute),
	}
}

func TestRecordAndQueryRuns(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-a", 1, models.RunStatusSucceeded, base)))
	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-a", 1, models.RunStatusFailed, base.Add(time.Hour))))
	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-b", 2, models.RunStatusSucceeded, base.Add(2*time.Hour))))

	runs, err := repo.GetByJobID(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.False(t, runs[0].ID.IsZero())

	runs, err = repo.GetByUser(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "job-a", runs[0].JobID)

	runs, err = repo.GetRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
	assert.Equal(t, "job-b", runs[0].JobID)
}

func TestCountByStatus(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-a", 1, models.RunStatusSucceeded, base)))
	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-b", 1, models.RunStatusSucceeded, base)))
	require.NoError(t, repo.RecordRun(ctx, sampleRun("job-c", 1, models.RunStatusCancelled, base)))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.RunStatusSucceeded])
	assert.Equal(t, int64(1), counts[models.RunStatusCancelled])
}
