package models

import "time"

const (
	// ClassStatusActive marks a class that is currently taught.
	ClassStatusActive = "active"
	// ClassStatusInactive marks an archived class.
	ClassStatusInactive = "inactive"
)

// Class groups assignments taught by one professor.
type Class struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Department  string    `gorm:"size:255" json:"department"`
	Code        string    `gorm:"size:64" json:"code"`
	Schedule    string    `gorm:"size:255" json:"schedule"`
	Term        string    `gorm:"size:64" json:"term"`
	Status      string    `gorm:"size:16;not null;default:active" json:"status"`
	UserID      string    `gorm:"size:128;index;not null" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
