package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is one entry of a professor's audit trail: batch submissions
// and deletions of batches or results.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     string            `gorm:"size:128;not null;index" json:"user_id"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:32;not null" json:"entity_type"`
	EntityID   string            `gorm:"size:64" json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TableName keeps the audit table name stable.
func (ActivityLog) TableName() string {
	return "activity_logs"
}
