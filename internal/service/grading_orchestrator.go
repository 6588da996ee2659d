package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/observability"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/retry"
	"github.com/noah-isme/autograde-api/pkg/grader"
)

const (
	defaultGradingConcurrency = 4
	defaultFileTimeout        = 45 * time.Second
)

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// GradingJob is one batch ready to be graded.
type GradingJob struct {
	Batch       models.SubmissionBatch
	Files       []IntakeFile
	Criteria    string
	TotalPoints float64
}

// OrchestratorConfig tunes grading fan-out.
type OrchestratorConfig struct {
	Concurrency int
	FileTimeout time.Duration
	// Retry bounds attempts per file. Its Retryable field is ignored.
	Retry retry.Policy
}

// GradingOrchestrator grades every file of a batch and records the outcome.
type GradingOrchestrator interface {
	Run(ctx context.Context, job GradingJob) (models.SubmissionBatch, error)
}

type gradingOrchestrator struct {
	grader   grader.Grader
	batches  repository.BatchRepository
	results  repository.ResultRepository
	archiver FileUploader
	events   BatchEventService
	cfg      OrchestratorConfig
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewGradingOrchestrator builds the orchestrator. archiver and events may be nil.
func NewGradingOrchestrator(g grader.Grader, batches repository.BatchRepository, results repository.ResultRepository, archiver FileUploader, events BatchEventService, cfg OrchestratorConfig, logger zerolog.Logger) GradingOrchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultGradingConcurrency
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = defaultFileTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default()
	}
	cfg.Retry.Retryable = grader.IsRetryable

	return &gradingOrchestrator{
		grader:   g,
		batches:  batches,
		results:  results,
		archiver: archiver,
		events:   events,
		cfg:      cfg,
		logger:   logger.With().Str("component", "grading_orchestrator").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/autograde-api/internal/service/orchestrator"),
		now:      time.Now,
	}
}

// Run grades the files concurrently, then moves the batch to completed, or
// to failed when a batch-level error occurred. The terminal write happens
// after every result write has returned, even if ctx is cancelled.
func (o *gradingOrchestrator) Run(parent context.Context, job GradingJob) (models.SubmissionBatch, error) {
	ctx, span := o.tracer.Start(parent, "orchestrator.run", trace.WithAttributes(
		attribute.String("batch_id", job.Batch.ID),
		attribute.Int("files", len(job.Files)),
	))
	defer span.End()

	started := o.now()
	observability.BatchesInFlight().Inc()
	defer observability.BatchesInFlight().Dec()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Concurrency)
	for _, file := range job.Files {
		file := file
		group.Go(func() error {
			return o.gradeFile(groupCtx, job, file)
		})
	}
	batchErr := group.Wait()
	if batchErr == nil && ctx.Err() != nil {
		batchErr = ctx.Err()
	}
	if errors.Is(batchErr, repository.ErrBatchGone) {
		batchErr = nil
	}

	status := models.BatchStatusCompleted
	if batchErr != nil {
		status = models.BatchStatusFailed
		span.RecordError(batchErr)
		span.SetStatus(codes.Error, batchErr.Error())
	}

	batch, err := o.finish(context.WithoutCancel(ctx), job.Batch, status)
	if err != nil {
		span.RecordError(err)
		return batch, errors.Join(batchErr, err)
	}

	observability.BatchDuration().Observe(o.now().Sub(started).Seconds())
	o.logger.Info().
		Str("batch_id", batch.ID).
		Str("status", batch.Status).
		Int("files", len(job.Files)).
		Err(batchErr).
		Msg("batch grading finished")

	return batch, batchErr
}

func (o *gradingOrchestrator) gradeFile(ctx context.Context, job GradingJob, file IntakeFile) error {
	if err := ctx.Err(); err != nil {
		observability.GradedFiles().WithLabelValues("aborted").Inc()
		return err
	}

	fileCtx, cancel := context.WithTimeout(ctx, o.cfg.FileTimeout)
	defer cancel()

	req := grader.Request{
		FileName:     file.Name,
		ContentType:  file.ContentType,
		Content:      file.Content,
		Criteria:     job.Criteria,
		SubmissionID: job.Batch.ID,
		TotalPoints:  job.TotalPoints,
	}
	raw, err := retry.DoValue(fileCtx, o.cfg.Retry, func(ctx context.Context) (json.RawMessage, error) {
		return o.grader.Grade(ctx, req)
	})

	result := grader.Empty()
	gradingError := ""
	switch {
	case err == nil:
		result, _ = grader.Coerce(raw)
	case grader.IsFatal(err):
		observability.GradedFiles().WithLabelValues("aborted").Inc()
		return fmt.Errorf("grade %s: %w", file.Name, err)
	case ctx.Err() != nil:
		observability.GradedFiles().WithLabelValues("aborted").Inc()
		return fmt.Errorf("grade %s: %w", file.Name, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		gradingError = fmt.Sprintf("grading timed out after %s", o.cfg.FileTimeout)
	default:
		gradingError = err.Error()
	}

	row := models.GradingResult{
		SubmissionID: job.Batch.ID,
		FileName:     file.Name,
		FileType:     file.ContentType,
		GradingError: gradingError,
	}
	row.FileContent, row.IsBase64 = encodeContent(file)
	if err := row.SetPayload(result); err != nil {
		return fmt.Errorf("encode result for %s: %w", file.Name, err)
	}
	row.FileURL = o.archive(ctx, job.Batch.ID, file)

	if err := o.results.Create(ctx, &row); err != nil {
		observability.GradedFiles().WithLabelValues("aborted").Inc()
		// A deleted batch stops the remaining files as well.
		return fmt.Errorf("persist result for %s: %w", file.Name, err)
	}

	if gradingError != "" {
		observability.GradedFiles().WithLabelValues("degraded").Inc()
		o.logger.Warn().
			Str("batch_id", job.Batch.ID).
			Str("file_name", file.Name).
			Str("grading_error", gradingError).
			Msg("file graded with fallback result")
	} else {
		observability.GradedFiles().WithLabelValues("graded").Inc()
	}
	return nil
}

func (o *gradingOrchestrator) archive(ctx context.Context, batchID string, file IntakeFile) string {
	if o.archiver == nil {
		return ""
	}
	url, err := o.archiver.Upload(ctx, archiveName(batchID, file.Name), bytes.NewReader(file.Content))
	if err != nil {
		o.logger.Warn().Err(err).Str("file_name", file.Name).Msg("failed to archive submission file")
		return ""
	}
	return url
}

func (o *gradingOrchestrator) finish(ctx context.Context, batch models.SubmissionBatch, status string) (models.SubmissionBatch, error) {
	at := o.now().UTC()
	policy := retry.Policy{
		MaxAttempts: o.cfg.Retry.MaxAttempts,
		Delay:       o.cfg.Retry.Delay,
		Retryable: func(err error) bool {
			return !errors.Is(err, repository.ErrStaleStatus) && !errors.Is(err, gorm.ErrRecordNotFound)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return o.batches.MarkTerminal(ctx, batch.ID, status, at)
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Deleted mid-grading: drop rows written after the delete.
		removed, cleanupErr := o.results.DeleteByBatch(ctx, batch.ID)
		if cleanupErr != nil {
			o.logger.Error().Err(cleanupErr).Str("batch_id", batch.ID).Msg("failed to remove results of deleted batch")
			return batch, fmt.Errorf("remove results of deleted batch: %w", cleanupErr)
		}
		o.logger.Warn().Str("batch_id", batch.ID).Int64("removed_results", removed).Msg("batch deleted before grading finished")
		return batch, nil
	case errors.Is(err, repository.ErrStaleStatus):
		o.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("batch left grading before completion")
		return batch, nil
	case err != nil:
		o.logger.Error().Err(err).Str("batch_id", batch.ID).Str("status", status).Msg("failed to record batch status")
		return batch, fmt.Errorf("record batch status: %w", err)
	}

	batch.Status = status
	batch.CompletedAt = &at
	observability.BatchesFinished().WithLabelValues(status).Inc()

	if o.events != nil {
		o.events.Publish(ctx, dto.NewBatchEvent(batch, at))
	}
	return batch, nil
}

// encodeContent stores text as-is and everything else as base64.
func encodeContent(file IntakeFile) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(file.ContentType)
	if err != nil {
		mediaType = file.ContentType
	}
	if strings.HasPrefix(mediaType, "text/") || mediaType == "application/json" {
		return string(file.Content), false
	}
	return base64.StdEncoding.EncodeToString(file.Content), true
}
