package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/casing"
	"github.com/noah-isme/autograde-api/pkg/grader"
)

// GradingResult is the persisted grade of one submitted file.
type GradingResult struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	SubmissionID   string            `gorm:"size:36;index;not null" json:"submission_id"`
	FileName       string            `gorm:"size:512;not null" json:"file_name"`
	FileContent    string            `gorm:"type:text" json:"file_content"`
	FileType       string            `gorm:"size:128" json:"file_type"`
	IsBase64       bool              `gorm:"not null;default:false" json:"is_base64"`
	GradingResults datatypes.JSONMap `json:"grading_results"`
	GradingError   string            `gorm:"type:text" json:"grading_error"`
	FileURL        string            `gorm:"size:512" json:"file_url"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TableName keeps the historical table name.
func (GradingResult) TableName() string {
	return "submission_results"
}

// BeforeCreate assigns an id when none was provided.
func (r *GradingResult) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Degraded reports whether the stored grade is a fallback.
func (r GradingResult) Degraded() bool {
	return r.GradingError != ""
}

// SetPayload stores the grade with snake_case keys.
func (r *GradingResult) SetPayload(result grader.Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode grading payload: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return fmt.Errorf("decode grading payload: %w", err)
	}
	snake, ok := casing.ToSnake(generic).(map[string]interface{})
	if !ok {
		return fmt.Errorf("grading payload is not an object")
	}
	r.GradingResults = datatypes.JSONMap(snake)
	return nil
}

// Payload returns the stored grade. Rows written by older clients are
// normalised the same way a grader reply is.
func (r GradingResult) Payload() grader.Result {
	if r.GradingResults == nil {
		return grader.Empty()
	}
	camel := casing.ToCamel(map[string]interface{}(r.GradingResults))
	encoded, err := json.Marshal(camel)
	if err != nil {
		return grader.Empty()
	}
	return grader.Decode(encoded)
}
