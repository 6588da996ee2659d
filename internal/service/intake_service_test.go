package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF")

type intakeFixture struct {
	db         *gorm.DB
	svc        IntakeService
	dispatcher *recordingDispatcher
	events     *recordingEvents
	assignment models.Assignment
}

func newIntakeFixture(t *testing.T, assignment models.Assignment) intakeFixture {
	t.Helper()
	db := newTestDB(t)
	assignment = seedAssignment(t, db, "prof-1", assignment)

	dispatcher := &recordingDispatcher{}
	events := &recordingEvents{}
	svc := NewIntakeService(repository.NewAssignmentRepository(db), repository.NewBatchRepository(db), dispatcher, events, nil, zerolog.Nop())
	return intakeFixture{db: db, svc: svc, dispatcher: dispatcher, events: events, assignment: assignment}
}

func (f intakeFixture) batchCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.SubmissionBatch{}).Count(&count).Error)
	return count
}

func TestValidateFileMatchesPatterns(t *testing.T) {
	require.True(t, ValidateFile(IntakeFile{ContentType: "application/pdf", Content: samplePDF}, []string{"application/pdf"}))
	require.True(t, ValidateFile(IntakeFile{ContentType: "audio/mpeg", Content: []byte{1}}, []string{"audio/*"}))
	require.True(t, ValidateFile(IntakeFile{ContentType: "application/json; charset=utf-8", Content: []byte("[]")}, []string{"application/json"}))
	require.False(t, ValidateFile(IntakeFile{ContentType: "image/png", Content: []byte{1}}, []string{"application/pdf", "audio/*"}))
	require.False(t, ValidateFile(IntakeFile{ContentType: "audiobook/x", Content: []byte{1}}, []string{"audio/*"}))
}

func TestValidateFileSniffsGenericTypes(t *testing.T) {
	file := IntakeFile{Name: "essay", ContentType: "application/octet-stream", Content: samplePDF}
	require.Equal(t, "application/pdf", ResolveMediaType(file))
	require.True(t, ValidateFile(file, []string{"application/pdf"}))

	untyped := IntakeFile{Name: "essay", Content: samplePDF}
	require.True(t, ValidateFile(untyped, []string{"application/pdf"}))
}

func TestCreateBatchRequiresGradingCriteria(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "   "})

	_, err := f.svc.Submit(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "a.pdf", ContentType: "application/pdf", Content: samplePDF},
	})

	require.ErrorIs(t, err, ErrGradingCriteriaMissing)
	require.Zero(t, f.batchCount(t))
	require.Empty(t, f.dispatcher.jobs)
	require.Empty(t, f.events.statuses())
}

func TestCreateBatchRejectsUnknownOrForeignAssignment(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 10 points"})
	files := []IntakeFile{{Name: "a.pdf", ContentType: "application/pdf", Content: samplePDF}}

	_, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID + 100, UserID: "prof-1"}, files)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "someone-else"}, files)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestCreateBatchFailsWhenNoFileIsAccepted(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 10 points"})

	_, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "photo.png", ContentType: "image/png", Content: []byte{0x89, 'P', 'N', 'G'}},
		{Name: "empty.pdf", ContentType: "application/pdf"},
	})

	require.ErrorIs(t, err, ErrEmptyBatch)
	require.Zero(t, f.batchCount(t))
}

func TestSubmitKeepsValidFilesAndWarnsAboutTheRest(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 10 points", Points: floatPointer(100)})

	result, err := f.svc.Submit(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1", BatchName: "<b>Week 1</b>"}, []IntakeFile{
		{Name: "a.pdf", ContentType: "application/pdf", Content: samplePDF},
		{Name: "b.pdf", ContentType: "application/octet-stream", Content: samplePDF},
		{Name: "notes.txt", ContentType: "text/plain", Content: []byte("hello")},
	})
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "notes.txt")

	require.Equal(t, models.BatchStatusGrading, result.Batch.Status)
	require.Equal(t, 2, result.Batch.FileCount)
	require.Equal(t, "Week 1", result.Batch.BatchName)
	require.NotEmpty(t, result.Batch.ID)
	require.Equal(t, int64(1), f.batchCount(t))

	require.Len(t, f.dispatcher.jobs, 1)
	job := f.dispatcher.jobs[0]
	require.Equal(t, result.Batch.ID, job.Batch.ID)
	require.Equal(t, "Q1: 10 points", job.Criteria)
	require.Equal(t, 100.0, job.TotalPoints)
	require.Equal(t, "application/pdf", job.Files[1].ContentType)

	require.Equal(t, []string{models.BatchStatusGrading}, f.events.statuses())
}

func TestCreateBatchDefaultsBatchName(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 10 points"})

	result, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "a.pdf", ContentType: "application/pdf", Content: samplePDF},
	})
	require.NoError(t, err)
	require.Regexp(t, `^Batch \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, result.Batch.BatchName)
}

func TestCreateBatchExpandsRosters(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 5 points", Type: models.AssignmentTypeQuizJSON})

	roster := []byte(`[{"first_name":"Ada","last_name":"Lovelace","answers":[1]},{"firstName":"Alan","lastName":"Turing","answers":[2]}]`)
	result, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "roster.json", ContentType: "application/json", Content: roster},
	})
	require.NoError(t, err)

	require.Equal(t, 2, result.Batch.FileCount)
	require.Equal(t, "LovelaceAda.txt", result.Files[0].Name)
	require.Equal(t, "TuringAlan.txt", result.Files[1].Name)
	require.Equal(t, "text/plain", result.Files[0].ContentType)
}

func TestCreateBatchNamesRosterFilesUniquelyAcrossUploads(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 5 points", Type: models.AssignmentTypeQuizJSON})

	roster := []byte(`[{"firstName":"Ada","lastName":"Lovelace"},{"answers":[1]}]`)
	withNamedFallback := []byte(`[{"firstName":"Ada","lastName":"Lovelace"},{"answers":[1]},{"lastName":"student_2"}]`)
	result, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "period-1.json", ContentType: "application/json", Content: roster},
		{Name: "period-2.json", ContentType: "application/json", Content: withNamedFallback},
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		"LovelaceAda.txt",
		"student_2.txt",
		"LovelaceAdaAttempt2.txt",
		"student_4.txt",
		"student_2Attempt2.txt",
	}, fileNames(result.Files))
	require.Equal(t, 5, result.Batch.FileCount)
}

func TestCreateBatchRejectsMalformedRoster(t *testing.T) {
	f := newIntakeFixture(t, models.Assignment{GradingCriteria: "Q1: 5 points", Type: models.AssignmentTypeQuizJSON})

	_, err := f.svc.CreateBatch(context.Background(), IntakeRequest{AssignmentID: f.assignment.ID, UserID: "prof-1"}, []IntakeFile{
		{Name: "roster.json", ContentType: "application/json", Content: []byte(`{"not":"a list"}`)},
	})

	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	require.True(t, IsValidationError(err))
	require.Zero(t, f.batchCount(t))
}
