package models

import (
	"time"
)

// Category is an operator-managed allow-list entry for filtered syncs.
type Category struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"uniqueIndex;not null;type:varchar(191)"`
	CategoryPath string    `json:"category_path"`
	Enabled      bool      `json:"enabled" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
