package service

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/observability"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// IntakeFile is an uploaded file held in memory until it is graded.
type IntakeFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// IntakeRequest identifies the batch being created.
type IntakeRequest struct {
	AssignmentID uint
	UserID       string
	BatchName    string
}

// IntakeResult is a persisted batch together with the files it will grade.
type IntakeResult struct {
	Batch      models.SubmissionBatch
	Assignment models.Assignment
	Files      []IntakeFile
	Warnings   []string
}

// Dispatcher hands a batch to background grading.
type Dispatcher interface {
	Dispatch(job GradingJob)
}

// IntakeService validates uploads and creates submission batches.
type IntakeService interface {
	CreateBatch(ctx context.Context, req IntakeRequest, files []IntakeFile) (IntakeResult, error)
	Submit(ctx context.Context, req IntakeRequest, files []IntakeFile) (IntakeResult, error)
}

type intakeService struct {
	assignments repository.AssignmentRepository
	batches     repository.BatchRepository
	dispatcher  Dispatcher
	events      BatchEventService
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewIntakeService builds the intake service. events and activity may be nil.
func NewIntakeService(assignments repository.AssignmentRepository, batches repository.BatchRepository, dispatcher Dispatcher, events BatchEventService, activity ActivityRecorder, logger zerolog.Logger) IntakeService {
	return &intakeService{
		assignments: assignments,
		batches:     batches,
		dispatcher:  dispatcher,
		events:      events,
		activity:    activity,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "intake_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/autograde-api/internal/service/intake"),
		now:         time.Now,
	}
}

// CreateBatch validates the upload and persists a batch in the grading state.
func (s *intakeService) CreateBatch(ctx context.Context, req IntakeRequest, files []IntakeFile) (IntakeResult, error) {
	ctx, span := s.tracer.Start(ctx, "intake.create_batch", trace.WithAttributes(
		attribute.Int64("assignment_id", int64(req.AssignmentID)),
		attribute.Int("uploaded_files", len(files)),
	))
	defer span.End()

	result, err := s.createBatch(ctx, req, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IntakeResult{}, err
	}
	span.SetAttributes(attribute.String("batch_id", result.Batch.ID), attribute.Int("accepted_files", len(result.Files)))
	return result, nil
}

func (s *intakeService) createBatch(ctx context.Context, req IntakeRequest, files []IntakeFile) (IntakeResult, error) {
	assignment, err := s.assignments.GetByID(ctx, req.AssignmentID, req.UserID)
	if err != nil {
		return IntakeResult{}, mapNotFound(err, ErrAssignmentNotFound)
	}

	if !assignment.HasGradingCriteria() {
		return IntakeResult{}, ErrGradingCriteriaMissing
	}

	accepted, warnings := FilterFiles(files, assignment.AcceptedMediaTypes())

	if assignment.IsRoster() {
		// Records of every roster upload are named together so names stay
		// unique across the whole batch.
		var records []RosterRecord
		for _, file := range accepted {
			parsed, err := ParseRoster(file.Content)
			if err != nil {
				return IntakeResult{}, fmt.Errorf("%s: %w", file.Name, err)
			}
			records = append(records, parsed...)
		}
		accepted = ConvertRosterToFiles(records)
	}

	if len(accepted) == 0 {
		return IntakeResult{}, ErrEmptyBatch
	}

	batch := models.SubmissionBatch{
		AssignmentID: assignment.ID,
		BatchName:    s.batchName(req.BatchName),
		FileCount:    len(accepted),
		Status:       models.BatchStatusGrading,
		UserID:       req.UserID,
	}
	if err := s.batches.Create(ctx, &batch); err != nil {
		return IntakeResult{}, fmt.Errorf("create batch: %w", err)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Uint("assignment_id", assignment.ID).
		Int("files", len(accepted)).
		Int("rejected", len(warnings)).
		Msg("submission batch created")

	return IntakeResult{
		Batch:      batch,
		Assignment: assignment,
		Files:      accepted,
		Warnings:   warnings,
	}, nil
}

// Submit creates the batch and hands it to background grading.
func (s *intakeService) Submit(ctx context.Context, req IntakeRequest, files []IntakeFile) (IntakeResult, error) {
	result, err := s.CreateBatch(ctx, req, files)
	if err != nil {
		return IntakeResult{}, err
	}

	if s.events != nil {
		s.events.Publish(ctx, dto.NewBatchEvent(result.Batch, s.now().UTC()))
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		UserID:     req.UserID,
		Action:     ActivityBatchSubmitted,
		EntityType: "batch",
		EntityID:   result.Batch.ID,
		Metadata: map[string]interface{}{
			"assignment_id":  result.Assignment.ID,
			"accepted_files": len(result.Files),
			"rejected_files": len(result.Warnings),
		},
	})

	s.dispatcher.Dispatch(GradingJob{
		Batch:       result.Batch,
		Files:       result.Files,
		Criteria:    result.Assignment.GradingCriteria,
		TotalPoints: result.Assignment.TotalPoints(),
	})

	return result, nil
}

func (s *intakeService) batchName(raw string) string {
	name := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if name == "" {
		return "Batch " + s.now().UTC().Format("2006-01-02 15:04:05")
	}
	return name
}

// FilterFiles splits files into those matching accepted and warnings for the
// rest. Accepted files carry their resolved media type.
func FilterFiles(files []IntakeFile, accepted []string) ([]IntakeFile, []string) {
	valid := make([]IntakeFile, 0, len(files))
	var warnings []string
	for _, file := range files {
		file.ContentType = ResolveMediaType(file)
		if len(file.Content) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: file is empty", file.Name))
			observability.IntakeRejectedFiles().Inc()
			continue
		}
		if !ValidateFile(file, accepted) {
			warnings = append(warnings, fmt.Sprintf("%s: type %s is not accepted (expected %s)", file.Name, file.ContentType, strings.Join(accepted, ", ")))
			observability.IntakeRejectedFiles().Inc()
			continue
		}
		valid = append(valid, file)
	}
	return valid, warnings
}

// ValidateFile reports whether the file's media type matches one of the
// accepted patterns. Patterns may use a subtype wildcard such as audio/*.
func ValidateFile(file IntakeFile, accepted []string) bool {
	mediaType := baseMediaType(ResolveMediaType(file))
	if mediaType == "" {
		return false
	}
	for _, pattern := range accepted {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mediaType, prefix+"/") {
				return true
			}
			continue
		}
		if mediaType == pattern {
			return true
		}
	}
	return false
}

// ResolveMediaType returns the declared media type, sniffing the content when
// the declaration is missing or generic.
func ResolveMediaType(file IntakeFile) string {
	declared := baseMediaType(file.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(file.Content) == 0 {
		return declared
	}
	return baseMediaType(mimetype.Detect(file.Content).String())
}

func baseMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return mediaType
}
