package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ErrBatchGone is returned when a result is written for a batch that no
// longer exists.
var ErrBatchGone = errors.New("batch no longer exists")

// ResultRepository defines persistence operations for per-file grading results.
type ResultRepository interface {
	Create(ctx context.Context, result *models.GradingResult) error
	ListByBatch(ctx context.Context, batchID string) ([]models.GradingResult, error)
	GetByID(ctx context.Context, id string, userID string) (models.GradingResult, error)
	Delete(ctx context.Context, id string, userID string) error
	Count(ctx context.Context, userID string) (int64, error)
	DeleteByBatch(ctx context.Context, batchID string) (int64, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository instantiates a GORM-backed repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

// Create inserts the result only while its batch still exists.
func (r *resultRepository) Create(ctx context.Context, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SubmissionBatch{}).Where("id = ?", result.SubmissionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrBatchGone
		}
		return tx.Create(result).Error
	})
}

// DeleteByBatch removes every result of batchID regardless of owner.
func (r *resultRepository) DeleteByBatch(ctx context.Context, batchID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("submission_id = ?", batchID).Delete(&models.GradingResult{})
	return result.RowsAffected, result.Error
}

func (r *resultRepository) ListByBatch(ctx context.Context, batchID string) ([]models.GradingResult, error) {
	var results []models.GradingResult
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", batchID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ownedResult restricts results to batches of userID.
func (r *resultRepository) ownedResult(ctx context.Context, userID string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.GradingResult{})
	if userID == "" {
		return query
	}
	owned := r.db.Model(&models.SubmissionBatch{}).Select("id").Where("user_id = ?", userID)
	return query.Where("submission_id IN (?)", owned)
}

func (r *resultRepository) GetByID(ctx context.Context, id string, userID string) (models.GradingResult, error) {
	var result models.GradingResult
	if err := r.ownedResult(ctx, userID).Where("id = ?", id).First(&result).Error; err != nil {
		return models.GradingResult{}, err
	}
	return result, nil
}

func (r *resultRepository) Delete(ctx context.Context, id string, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var result models.GradingResult
		query := tx.Model(&models.GradingResult{}).Where("id = ?", id)
		if userID != "" {
			owned := tx.Model(&models.SubmissionBatch{}).Select("id").Where("user_id = ?", userID)
			query = query.Where("submission_id IN (?)", owned)
		}
		if err := query.First(&result).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GradingResult{}, "id = ?", result.ID).Error
	})
}

func (r *resultRepository) Count(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.ownedResult(ctx, userID).Count(&total).Error
	return total, err
}
