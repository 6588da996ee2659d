package repository

import (
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ownedBy limits a query to rows of userID. An empty userID leaves the query
// unscoped, which internal callers such as the grading orchestrator rely on.
func ownedBy(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == "" {
			return db
		}
		return db.Where("user_id = ?", userID)
	}
}

// deleteBatches removes the given batches, results first.
func deleteBatches(tx *gorm.DB, batchIDs []string) error {
	if len(batchIDs) == 0 {
		return nil
	}
	if err := tx.Where("submission_id IN ?", batchIDs).Delete(&models.GradingResult{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", batchIDs).Delete(&models.SubmissionBatch{}).Error
}

// deleteAssignments removes the given assignments with their batches.
func deleteAssignments(tx *gorm.DB, assignmentIDs []uint) error {
	if len(assignmentIDs) == 0 {
		return nil
	}
	var batchIDs []string
	if err := tx.Model(&models.SubmissionBatch{}).Where("assignment_id IN ?", assignmentIDs).Pluck("id", &batchIDs).Error; err != nil {
		return err
	}
	if err := deleteBatches(tx, batchIDs); err != nil {
		return err
	}
	return tx.Where("id IN ?", assignmentIDs).Delete(&models.Assignment{}).Error
}
