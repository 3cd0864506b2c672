package sync

import (
	"context"

	"catalogsync/internal/models"
)

type Status struct {
	Running bool            `json:"running"`
	LastRun *models.SyncRun `json:"last_run"`
}

// Status reports whether a run is in flight and the most recent run,
// which is the in-flight one while running.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	last, err := o.store.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Running: o.Running(), LastRun: last}, nil
}

func (o *Orchestrator) History(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return o.store.RunHistory(ctx, limit)
}
