package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ValidationError reports input that cannot be processed. Nothing is persisted
// when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

var (
	// ErrGradingCriteriaMissing blocks intake for assignments without criteria.
	ErrGradingCriteriaMissing = newValidationError("grading criteria must be defined before submissions can be graded")
	// ErrEmptyBatch is returned when no uploaded file passed validation.
	ErrEmptyBatch = newValidationError("no valid files to grade")

	// ErrClassNotFound indicates the requested class does not exist for the caller.
	ErrClassNotFound = errors.New("class not found")
	// ErrAssignmentNotFound indicates the requested assignment does not exist for the caller.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrBatchNotFound indicates the requested batch does not exist for the caller.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrResultNotFound indicates the requested grading result does not exist for the caller.
	ErrResultNotFound = errors.New("result not found")
)

// IsValidationError reports whether err stems from invalid caller input.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &validationErr) || errors.As(err, &fieldErrs)
}

func mapNotFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
