// Package repository provides data access for the run-history records.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

// RunRepository persists and queries pipeline run history. It satisfies the
// runner's RunRecorder contract.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RecordRun persists one completed run.
func (r *RunRepository) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// GetByJobID returns every recorded run of a job, newest first.
func (r *RunRepository) GetByJobID(ctx context.Context, jobID string) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("started_at DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting runs by job: %w", err)
	}
	return runs, nil
}

// GetByUser returns a user's runs, newest first, capped at limit.
func (r *RunRepository) GetByUser(ctx context.Context, userID, limit int) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting runs by user: %w", err)
	}
	return runs, nil
}

// GetRecent returns the most recent runs across all users.
func (r *RunRepository) GetRecent(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting recent runs: %w", err)
	}
	return runs, nil
}

// CountByStatus returns the number of recorded runs per status.
func (r *RunRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.PipelineRun{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting runs by status: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
