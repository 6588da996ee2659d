package dto

import (
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ClassCreateRequest describes the payload for creating a class.
type ClassCreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=5000"`
	Department  string `json:"department" validate:"max=255"`
	Code        string `json:"code" validate:"max=64"`
	Schedule    string `json:"schedule" validate:"max=255"`
	Term        string `json:"term" validate:"max=64"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// ClassUpdateRequest describes a partial class update.
type ClassUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Department  *string `json:"department" validate:"omitempty,max=255"`
	Code        *string `json:"code" validate:"omitempty,max=64"`
	Schedule    *string `json:"schedule" validate:"omitempty,max=255"`
	Term        *string `json:"term" validate:"omitempty,max=64"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// ClassResponse is the serialized representation returned to API clients.
type ClassResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Department  string    `json:"department"`
	Code        string    `json:"code"`
	Schedule    string    `json:"schedule"`
	Term        string    `json:"term"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewClassResponse converts a model into a DTO.
func NewClassResponse(model models.Class) ClassResponse {
	return ClassResponse{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Department:  model.Department,
		Code:        model.Code,
		Schedule:    model.Schedule,
		Term:        model.Term,
		Status:      model.Status,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewClassResponseSlice converts a slice of models into DTOs.
func NewClassResponseSlice(classes []models.Class) []ClassResponse {
	responses := make([]ClassResponse, 0, len(classes))
	for _, class := range classes {
		responses = append(responses, NewClassResponse(class))
	}
	return responses
}
