package models

import (
	"strings"
	"time"
)

const (
	// AssignmentTypePDF accepts PDF documents.
	AssignmentTypePDF = "pdf"
	// AssignmentTypeVoice accepts audio recordings.
	AssignmentTypeVoice = "voice"
	// AssignmentTypeQuizJSON accepts JSON rosters of quiz answers.
	AssignmentTypeQuizJSON = "quiz-json"
)

// Assignment is a gradable task belonging to a class.
type Assignment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	Points          *float64  `json:"points"`
	Type            string    `gorm:"size:16;not null" json:"type"`
	ClassID         uint      `gorm:"index;not null" json:"class_id"`
	UserID          string    `gorm:"size:128;index;not null" json:"user_id"`
	GradingCriteria string    `gorm:"type:text" json:"grading_criteria"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasGradingCriteria reports whether grading can start for this assignment.
func (a Assignment) HasGradingCriteria() bool {
	return strings.TrimSpace(a.GradingCriteria) != ""
}

// AcceptedMediaTypes lists the upload media patterns allowed for the assignment type.
func (a Assignment) AcceptedMediaTypes() []string {
	switch a.Type {
	case AssignmentTypeVoice:
		return []string{"audio/*"}
	case AssignmentTypeQuizJSON:
		return []string{"application/json"}
	default:
		return []string{"application/pdf"}
	}
}

// IsRoster reports whether uploads are JSON rosters expanded per student.
func (a Assignment) IsRoster() bool {
	return a.Type == AssignmentTypeQuizJSON
}

// TotalPoints returns the points available, zero when undefined.
func (a Assignment) TotalPoints() float64 {
	if a.Points == nil {
		return 0
	}
	return *a.Points
}
