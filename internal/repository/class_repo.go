package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ClassRepository defines persistence operations for classes.
type ClassRepository interface {
	List(ctx context.Context, userID string) ([]models.Class, error)
	GetByID(ctx context.Context, id uint, userID string) (models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id uint, userID string) error
	Count(ctx context.Context, userID string) (int64, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository instantiates a GORM-backed repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) List(ctx context.Context, userID string) ([]models.Class, error) {
	var classes []models.Class
	if err := r.db.WithContext(ctx).Scopes(ownedBy(userID)).Order("created_at DESC").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *classRepository) GetByID(ctx context.Context, id uint, userID string) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&class, id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Create(class).Error
}

func (r *classRepository) Update(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Save(class).Error
}

// Delete removes the class together with its assignments, batches and results.
func (r *classRepository) Delete(ctx context.Context, id uint, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var class models.Class
		if err := tx.Scopes(ownedBy(userID)).First(&class, id).Error; err != nil {
			return err
		}

		var assignmentIDs []uint
		if err := tx.Model(&models.Assignment{}).Where("class_id = ?", class.ID).Pluck("id", &assignmentIDs).Error; err != nil {
			return err
		}
		if err := deleteAssignments(tx, assignmentIDs); err != nil {
			return err
		}
		return tx.Delete(&models.Class{}, class.ID).Error
	})
}

func (r *classRepository) Count(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Class{}).Scopes(ownedBy(userID)).Count(&total).Error
	return total, err
}
