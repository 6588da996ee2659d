package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// BatchStatusGrading is the initial state while files are being graded.
	BatchStatusGrading = "grading"
	// BatchStatusCompleted means every file was attempted.
	BatchStatusCompleted = "completed"
	// BatchStatusFailed means grading aborted on a batch-level error.
	BatchStatusFailed = "failed"
)

// SubmissionBatch is one upload of student files for an assignment.
type SubmissionBatch struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID uint       `gorm:"index;not null" json:"assignment_id"`
	BatchName    string     `gorm:"size:255;not null" json:"batch_name"`
	FileCount    int        `gorm:"not null" json:"file_count"`
	Status       string     `gorm:"size:16;index;not null" json:"status"`
	UserID       string     `gorm:"size:128;index;not null" json:"user_id"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// TableName keeps the historical table name.
func (SubmissionBatch) TableName() string {
	return "submissions"
}

// BeforeCreate assigns an id when none was provided.
func (b *SubmissionBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// IsTerminal reports whether the batch left the grading state.
func (b SubmissionBatch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed
}
