package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// DashboardService produces the per-professor summary.
type DashboardService interface {
	GetSummary(ctx context.Context, userID string) (dto.DashboardResponse, error)
}

type dashboardService struct {
	classes     repository.ClassRepository
	assignments repository.AssignmentRepository
	batches     repository.BatchRepository
	results     repository.ResultRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDashboardService builds the dashboard aggregator. cache may be nil.
func NewDashboardService(classes repository.ClassRepository, assignments repository.AssignmentRepository, batches repository.BatchRepository, results repository.ResultRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		classes:     classes,
		assignments: assignments,
		batches:     batches,
		results:     results,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		now:         time.Now,
	}
}

func (s *dashboardService) GetSummary(ctx context.Context, userID string) (dto.DashboardResponse, error) {
	cacheKey := fmt.Sprintf("dashboard:user:%s", userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("user_id", userID).Msg("dashboard cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	classes, err := s.classes.Count(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	assignments, err := s.assignments.Count(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	statuses, err := s.batches.CountByStatus(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	graded, err := s.results.Count(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	response := dto.DashboardResponse{
		TotalClasses:     classes,
		TotalAssignments: assignments,
		Batches: dto.BatchStatusCounts{
			Grading:   statuses[models.BatchStatusGrading],
			Completed: statuses[models.BatchStatusCompleted],
			Failed:    statuses[models.BatchStatusFailed],
		},
		GradedFiles: graded,
		GeneratedAt: s.now().UTC(),
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}
