package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ErrStaleStatus is returned when a status transition finds the batch in an
// unexpected state.
var ErrStaleStatus = errors.New("batch status changed concurrently")

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid batch status transition")

// BatchRepository defines persistence operations for submission batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *models.SubmissionBatch) error
	GetByID(ctx context.Context, id string, userID string) (models.SubmissionBatch, error)
	ListByAssignment(ctx context.Context, assignmentID uint, userID string) ([]models.SubmissionBatch, error)
	MarkTerminal(ctx context.Context, id, status string, at time.Time) error
	Delete(ctx context.Context, id string, userID string) error
	CountByStatus(ctx context.Context, userID string) (map[string]int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository instantiates a GORM-backed repository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *models.SubmissionBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *batchRepository) GetByID(ctx context.Context, id string, userID string) (models.SubmissionBatch, error) {
	var batch models.SubmissionBatch
	if err := r.db.WithContext(ctx).Scopes(ownedBy(userID)).Where("id = ?", id).First(&batch).Error; err != nil {
		return models.SubmissionBatch{}, err
	}
	return batch, nil
}

func (r *batchRepository) ListByAssignment(ctx context.Context, assignmentID uint, userID string) ([]models.SubmissionBatch, error) {
	var batches []models.SubmissionBatch
	if err := r.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkTerminal moves a grading batch to completed or failed and stamps
// completed_at. The update only applies while the batch is still grading; any
// other current status yields ErrStaleStatus.
func (r *batchRepository) MarkTerminal(ctx context.Context, id, status string, at time.Time) error {
	if status != models.BatchStatusCompleted && status != models.BatchStatusFailed {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, status)
	}

	result := r.db.WithContext(ctx).
		Model(&models.SubmissionBatch{}).
		Where("id = ? AND status = ?", id, models.BatchStatusGrading).
		Updates(map[string]interface{}{"status": status, "completed_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SubmissionBatch{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStaleStatus
}

// Delete removes the batch and its results in one transaction.
func (r *batchRepository) Delete(ctx context.Context, id string, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch models.SubmissionBatch
		if err := tx.Scopes(ownedBy(userID)).Where("id = ?", id).First(&batch).Error; err != nil {
			return err
		}
		return deleteBatches(tx, []string{batch.ID})
	})
}

func (r *batchRepository) CountByStatus(ctx context.Context, userID string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SubmissionBatch{}).
		Scopes(ownedBy(userID)).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{
		models.BatchStatusGrading:   0,
		models.BatchStatusCompleted: 0,
		models.BatchStatusFailed:    0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
