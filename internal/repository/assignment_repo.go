package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	ListByClass(ctx context.Context, classID uint, userID string) ([]models.Assignment, error)
	GetByID(ctx context.Context, id uint, userID string) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint, userID string) error
	Count(ctx context.Context, userID string) (int64, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) ListByClass(ctx context.Context, classID uint, userID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("class_id = ?", classID).
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint, userID string) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

// Delete removes the assignment together with its batches and their results.
func (r *assignmentRepository) Delete(ctx context.Context, id uint, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.Assignment
		if err := tx.Scopes(ownedBy(userID)).First(&assignment, id).Error; err != nil {
			return err
		}
		return deleteAssignments(tx, []uint{assignment.ID})
	})
}

func (r *assignmentRepository) Count(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).Scopes(ownedBy(userID)).Count(&total).Error
	return total, err
}
