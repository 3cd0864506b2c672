package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRun struct {
	ID           string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StartedAt    time.Time     `json:"started_at" gorm:"index"`
	HeartbeatAt  time.Time     `json:"heartbeat_at"`
	CompletedAt  *time.Time    `json:"completed_at"`
	Status       SyncRunStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Fetched      int           `json:"fetched"`
	Added        int           `json:"added"`
	Updated      int           `json:"updated"`
	ErrorMessage *string       `json:"error_message" gorm:"type:text"`
	StopReason   string        `json:"stop_reason,omitempty"`
}

type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusCompleted SyncRunStatus = "completed"
	SyncRunStatusFailed    SyncRunStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s SyncRunStatus) Terminal() bool {
	return s == SyncRunStatusCompleted || s == SyncRunStatusFailed
}

func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.HeartbeatAt.IsZero() {
		r.HeartbeatAt = r.StartedAt
	}
	return nil
}
