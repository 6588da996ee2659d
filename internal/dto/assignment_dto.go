package dto

import (
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title           string   `json:"title" validate:"required,min=1,max=255"`
	Description     string   `json:"description" validate:"max=10000"`
	Points          *float64 `json:"points" validate:"omitempty,gte=0"`
	Type            string   `json:"type" validate:"required,oneof=pdf voice quiz-json"`
	ClassID         uint     `json:"class_id" validate:"required"`
	GradingCriteria string   `json:"grading_criteria" validate:"max=20000"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title           *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description     *string  `json:"description" validate:"omitempty,max=10000"`
	Points          *float64 `json:"points" validate:"omitempty,gte=0"`
	Type            *string  `json:"type" validate:"omitempty,oneof=pdf voice quiz-json"`
	GradingCriteria *string  `json:"grading_criteria" validate:"omitempty,max=20000"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Points          *float64  `json:"points"`
	Type            string    `json:"type"`
	ClassID         uint      `json:"class_id"`
	GradingCriteria string    `json:"grading_criteria"`
	AcceptedTypes   []string  `json:"accepted_types"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:              model.ID,
		Title:           model.Title,
		Description:     model.Description,
		Points:          model.Points,
		Type:            model.Type,
		ClassID:         model.ClassID,
		GradingCriteria: model.GradingCriteria,
		AcceptedTypes:   model.AcceptedMediaTypes(),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
