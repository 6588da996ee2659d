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

// ClassService exposes class use cases for the owning professor.
type ClassService interface {
	List(ctx context.Context, userID string) ([]dto.ClassResponse, error)
	Get(ctx context.Context, id uint, userID string) (dto.ClassResponse, error)
	Create(ctx context.Context, userID string, payload dto.ClassCreateRequest) (dto.ClassResponse, error)
	Update(ctx context.Context, id uint, userID string, payload dto.ClassUpdateRequest) (dto.ClassResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
}

type classService struct {
	repo      repository.ClassRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewClassService builds a new class service.
func NewClassService(repo repository.ClassRepository, validate *validator.Validate, logger zerolog.Logger) ClassService {
	return &classService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "class_service").Logger(),
	}
}

func (s *classService) List(ctx context.Context, userID string) ([]dto.ClassResponse, error) {
	classes, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewClassResponseSlice(classes), nil
}

func (s *classService) Get(ctx context.Context, id uint, userID string) (dto.ClassResponse, error) {
	class, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.ClassResponse{}, mapNotFound(err, ErrClassNotFound)
	}
	return dto.NewClassResponse(class), nil
}

func (s *classService) Create(ctx context.Context, userID string, payload dto.ClassCreateRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		Title:       s.clean(payload.Title),
		Description: s.clean(payload.Description),
		Department:  s.clean(payload.Department),
		Code:        s.clean(payload.Code),
		Schedule:    s.clean(payload.Schedule),
		Term:        s.clean(payload.Term),
		Status:      payload.Status,
		UserID:      userID,
	}
	if class.Status == "" {
		class.Status = models.ClassStatusActive
	}
	if class.Title == "" {
		return dto.ClassResponse{}, newValidationError("class title empty after sanitization")
	}

	if err := s.repo.Create(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	s.logger.Info().Uint("class_id", class.ID).Msg("class created")
	return dto.NewClassResponse(class), nil
}

func (s *classService) Update(ctx context.Context, id uint, userID string, payload dto.ClassUpdateRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	class, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.ClassResponse{}, mapNotFound(err, ErrClassNotFound)
	}

	if payload.Title != nil {
		title := s.clean(*payload.Title)
		if title == "" {
			return dto.ClassResponse{}, newValidationError("class title empty after sanitization")
		}
		class.Title = title
	}
	if payload.Description != nil {
		class.Description = s.clean(*payload.Description)
	}
	if payload.Department != nil {
		class.Department = s.clean(*payload.Department)
	}
	if payload.Code != nil {
		class.Code = s.clean(*payload.Code)
	}
	if payload.Schedule != nil {
		class.Schedule = s.clean(*payload.Schedule)
	}
	if payload.Term != nil {
		class.Term = s.clean(*payload.Term)
	}
	if payload.Status != nil {
		class.Status = *payload.Status
	}

	if err := s.repo.Update(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}
	return dto.NewClassResponse(class), nil
}

func (s *classService) Delete(ctx context.Context, id uint, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return mapNotFound(err, ErrClassNotFound)
	}
	s.logger.Info().Uint("class_id", id).Msg("class deleted")
	return nil
}

func (s *classService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}
