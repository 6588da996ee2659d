package service

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// ResultService exposes batches and their grading results to the viewer.
type ResultService interface {
	GetBatch(ctx context.Context, id, userID string) (dto.BatchResponse, error)
	ListBatches(ctx context.Context, assignmentID uint, userID string) ([]dto.BatchResponse, error)
	ListResults(ctx context.Context, batchID, userID string) ([]dto.ResultResponse, error)
	DeleteResult(ctx context.Context, id, userID string) error
	DeleteBatch(ctx context.Context, id, userID string) error
}

type resultService struct {
	assignments repository.AssignmentRepository
	batches     repository.BatchRepository
	results     repository.ResultRepository
	activity    ActivityRecorder
	logger      zerolog.Logger
}

// NewResultService builds the result viewer service. activity may be nil.
func NewResultService(assignments repository.AssignmentRepository, batches repository.BatchRepository, results repository.ResultRepository, activity ActivityRecorder, logger zerolog.Logger) ResultService {
	return &resultService{
		assignments: assignments,
		batches:     batches,
		results:     results,
		activity:    activity,
		logger:      logger.With().Str("component", "result_service").Logger(),
	}
}

// Percentage converts a score to a rounded percentage of totalPoints. Without
// a usable total the score is returned unchanged.
func Percentage(score float64, totalPoints *float64) float64 {
	if totalPoints == nil || *totalPoints == 0 {
		return score
	}
	return math.Round(score / *totalPoints * 100)
}

func (s *resultService) GetBatch(ctx context.Context, id, userID string) (dto.BatchResponse, error) {
	batch, err := s.batches.GetByID(ctx, id, userID)
	if err != nil {
		return dto.BatchResponse{}, mapNotFound(err, ErrBatchNotFound)
	}
	return dto.NewBatchResponse(batch), nil
}

func (s *resultService) ListBatches(ctx context.Context, assignmentID uint, userID string) ([]dto.BatchResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID, userID); err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}

	batches, err := s.batches.ListByAssignment(ctx, assignmentID, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewBatchResponseSlice(batches), nil
}

func (s *resultService) ListResults(ctx context.Context, batchID, userID string) ([]dto.ResultResponse, error) {
	batch, err := s.batches.GetByID(ctx, batchID, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrBatchNotFound)
	}

	var points *float64
	assignment, err := s.assignments.GetByID(ctx, batch.AssignmentID, "")
	switch {
	case err == nil:
		points = assignment.Points
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn().Str("batch_id", batch.ID).Msg("batch assignment missing, percentages use raw scores")
	default:
		return nil, err
	}

	rows, err := s.results.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ResultResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, newResultResponse(row, points))
	}
	return responses, nil
}

func (s *resultService) DeleteResult(ctx context.Context, id, userID string) error {
	if err := s.results.Delete(ctx, id, userID); err != nil {
		return mapNotFound(err, ErrResultNotFound)
	}
	s.logger.Info().Str("result_id", id).Msg("grading result deleted")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{UserID: userID, Action: ActivityResultDeleted, EntityType: "result", EntityID: id})
	return nil
}

func (s *resultService) DeleteBatch(ctx context.Context, id, userID string) error {
	if err := s.batches.Delete(ctx, id, userID); err != nil {
		return mapNotFound(err, ErrBatchNotFound)
	}
	s.logger.Info().Str("batch_id", id).Msg("submission batch deleted")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{UserID: userID, Action: ActivityBatchDeleted, EntityType: "batch", EntityID: id})
	return nil
}

func newResultResponse(row models.GradingResult, points *float64) dto.ResultResponse {
	payload := row.Payload()
	return dto.ResultResponse{
		ID:             row.ID,
		SubmissionID:   row.SubmissionID,
		FileName:       row.FileName,
		FileType:       row.FileType,
		FileContent:    row.FileContent,
		IsBase64:       row.IsBase64,
		FileURL:        row.FileURL,
		GradingResults: payload,
		Percentage:     Percentage(payload.TotalScore, points),
		Degraded:       row.Degraded(),
		GradingError:   row.GradingError,
		CreatedAt:      row.CreatedAt,
	}
}
