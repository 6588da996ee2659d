package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// AssignmentService exposes assignment domain use cases.
type AssignmentService interface {
	ListByClass(ctx context.Context, classID uint, userID string) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint, userID string) (dto.AssignmentResponse, error)
	Create(ctx context.Context, userID string, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, userID string, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	classes   repository.ClassRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, classes repository.ClassRepository, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		classes:   classes,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) ListByClass(ctx context.Context, classID uint, userID string) ([]dto.AssignmentResponse, error) {
	if _, err := s.classes.GetByID(ctx, classID, userID); err != nil {
		return nil, mapNotFound(err, ErrClassNotFound)
	}

	assignments, err := s.repo.ListByClass(ctx, classID, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewAssignmentResponseSlice(assignments), nil
}

func (s *assignmentService) Get(ctx context.Context, id uint, userID string) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.AssignmentResponse{}, mapNotFound(err, ErrAssignmentNotFound)
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, userID string, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if _, err := s.classes.GetByID(ctx, payload.ClassID, userID); err != nil {
		return dto.AssignmentResponse{}, mapNotFound(err, ErrClassNotFound)
	}

	assignment := models.Assignment{
		Title:           s.clean(payload.Title),
		Description:     s.clean(payload.Description),
		Points:          payload.Points,
		Type:            payload.Type,
		ClassID:         payload.ClassID,
		UserID:          userID,
		GradingCriteria: strings.TrimSpace(payload.GradingCriteria),
	}
	if assignment.Title == "" {
		return dto.AssignmentResponse{}, newValidationError("assignment title empty after sanitization")
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment created")
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, userID string, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.AssignmentResponse{}, mapNotFound(err, ErrAssignmentNotFound)
	}

	if payload.Title != nil {
		title := s.clean(*payload.Title)
		if title == "" {
			return dto.AssignmentResponse{}, newValidationError("assignment title empty after sanitization")
		}
		assignment.Title = title
	}
	if payload.Description != nil {
		assignment.Description = s.clean(*payload.Description)
	}
	if payload.Points != nil {
		assignment.Points = payload.Points
	}
	if payload.Type != nil {
		assignment.Type = *payload.Type
	}
	if payload.GradingCriteria != nil {
		// Criteria are free text sent verbatim to the grader.
		assignment.GradingCriteria = strings.TrimSpace(*payload.GradingCriteria)
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return mapNotFound(err, ErrAssignmentNotFound)
	}
	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")
	return nil
}

func (s *assignmentService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}
