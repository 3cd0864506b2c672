package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

// ErrRunFinalized is returned when a terminal transition is attempted on a
// run that already left the running state.
var ErrRunFinalized = errors.New("sync run already finalized")

// RunProgress are the counters a run accumulates page by page.
type RunProgress struct {
	Fetched int
	Added   int
	Updated int
}

func (s *Store) CreateRun(ctx context.Context) (*models.SyncRun, error) {
	now := s.now()
	run := &models.SyncRun{Status: models.SyncRunStatusRunning, StartedAt: now, HeartbeatAt: now}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	return run, nil
}

// UpdateRunProgress persists the running counters so that an observer sees
// progress before the run finishes. It also refreshes the run heartbeat.
func (s *Store) UpdateRunProgress(ctx context.Context, id string, p RunProgress) error {
	err := s.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, models.SyncRunStatusRunning).
		Updates(map[string]any{
			"fetched":      p.Fetched,
			"added":        p.Added,
			"updated":      p.Updated,
			"heartbeat_at": s.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update sync run %s: %w", id, err)
	}
	return nil
}

// FinishRun moves a running run to a terminal status exactly once.
func (s *Store) FinishRun(ctx context.Context, id string, status models.SyncRunStatus, p RunProgress, stopReason string, runErr error) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	updates := map[string]any{
		"status":       status,
		"completed_at": s.now(),
		"fetched":      p.Fetched,
		"added":        p.Added,
		"updated":      p.Updated,
		"stop_reason":  stopReason,
	}
	if runErr != nil {
		updates["error_message"] = runErr.Error()
	}

	res := s.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, models.SyncRunStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finalize sync run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunFinalized
	}
	return nil
}

// FailStaleRuns closes runs left in the running state by a process that
// died mid-sync: running rows other than except whose heartbeat is older
// than idle. Runs of other live processes keep beating and stay open.
func (s *Store) FailStaleRuns(ctx context.Context, except string, idle time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("status = ? AND id <> ? AND heartbeat_at < ?", models.SyncRunStatusRunning, except, s.now().Add(-idle)).
		Updates(map[string]any{
			"status":        models.SyncRunStatusFailed,
			"completed_at":  s.now(),
			"error_message": "interrupted",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to close stale sync runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetRun returns nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRun returns the most recently started run, or nil.
func (s *Store) LatestRun(ctx context.Context) (*models.SyncRun, error) {
	var runs []models.SyncRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(1).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load latest sync run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *Store) RunHistory(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load sync history: %w", err)
	}
	return runs, nil
}
