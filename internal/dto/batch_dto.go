package dto

import (
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/pkg/grader"
)

// BatchResponse describes a submission batch.
type BatchResponse struct {
	ID           string     `json:"id"`
	AssignmentID uint       `json:"assignment_id"`
	BatchName    string     `json:"batch_name"`
	FileCount    int        `json:"file_count"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// NewBatchResponse converts a model into a DTO.
func NewBatchResponse(model models.SubmissionBatch) BatchResponse {
	return BatchResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		BatchName:    model.BatchName,
		FileCount:    model.FileCount,
		Status:       model.Status,
		CreatedAt:    model.CreatedAt,
		CompletedAt:  model.CompletedAt,
	}
}

// NewBatchResponseSlice converts a slice of models into DTOs.
func NewBatchResponseSlice(batches []models.SubmissionBatch) []BatchResponse {
	responses := make([]BatchResponse, 0, len(batches))
	for _, batch := range batches {
		responses = append(responses, NewBatchResponse(batch))
	}
	return responses
}

// BatchCreateResponse is returned when an upload is accepted for grading.
type BatchCreateResponse struct {
	Batch         BatchResponse `json:"batch"`
	AcceptedFiles []string      `json:"accepted_files"`
}

// ResultResponse describes one graded file.
type ResultResponse struct {
	ID             string        `json:"id"`
	SubmissionID   string        `json:"submission_id"`
	FileName       string        `json:"file_name"`
	FileType       string        `json:"file_type"`
	FileContent    string        `json:"file_content"`
	IsBase64       bool          `json:"is_base64"`
	FileURL        string        `json:"file_url,omitempty"`
	GradingResults grader.Result `json:"grading_results"`
	Percentage     float64       `json:"percentage"`
	Degraded       bool          `json:"degraded"`
	GradingError   string        `json:"grading_error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// BatchEvent is broadcast whenever a batch changes status.
type BatchEvent struct {
	BatchID      string    `json:"batch_id"`
	AssignmentID uint      `json:"assignment_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	FileCount    int       `json:"file_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewBatchEvent builds the event for the batch's current status.
func NewBatchEvent(model models.SubmissionBatch, at time.Time) BatchEvent {
	return BatchEvent{
		BatchID:      model.ID,
		AssignmentID: model.AssignmentID,
		UserID:       model.UserID,
		Status:       model.Status,
		FileCount:    model.FileCount,
		OccurredAt:   at,
	}
}
