package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the grading backend rejected our credentials.
	// It affects every file of a batch, so callers treat it as batch-level.
	ErrUnauthorized = errors.New("grading service rejected credentials")
	// ErrMalformedReply marks a reply that did not match the expected shape.
	ErrMalformedReply = errors.New("malformed grading reply")
	// ErrUnsupportedContent indicates the provider cannot grade this media type.
	ErrUnsupportedContent = errors.New("content type not supported by grader")
)

// Request describes one file to be graded.
type Request struct {
	FileName     string
	ContentType  string
	Content      []byte
	Criteria     string
	SubmissionID string
	TotalPoints  float64
}

// AspectResult is the grade for one question or rubric aspect.
type AspectResult struct {
	Question string   `json:"question"`
	Mistakes []string `json:"mistakes"`
	Score    float64  `json:"score"`
	Feedback string   `json:"feedback"`
}

// Result is the normalised grade of one file.
type Result struct {
	Results         []AspectResult `json:"results"`
	TotalScore      float64        `json:"totalScore"`
	OverallFeedback string         `json:"overallFeedback"`
}

// Grader grades a single file. The returned reply is untrusted and must be
// passed through Coerce.
type Grader interface {
	Grade(ctx context.Context, req Request) (json.RawMessage, error)
}

// ServiceError is an error reported by the grading backend.
type ServiceError struct {
	StatusCode int
	Message    string
	retryable  bool
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("grading service error (%d): %s", e.StatusCode, e.Message)
	}
	return "grading service error: " + e.Message
}

// Retryable reports whether repeating the request may succeed.
func (e *ServiceError) Retryable() bool {
	return e.retryable
}

// IsRetryable reports whether err is worth another grading attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnsupportedContent) || errors.Is(err, context.Canceled) {
		return false
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Retryable()
	}
	return true
}

// IsFatal reports whether err invalidates the whole batch rather than one file.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
