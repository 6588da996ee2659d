package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/retry"
	"github.com/noah-isme/autograde-api/pkg/grader"
)

const validReply = `{"results":[{"question":"Q1","mistakes":[],"score":8,"feedback":"Good"}],"totalScore":8,"overallFeedback":"Well done"}`

type scriptedGrader struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(req grader.Request, attempt int) (json.RawMessage, error)
}

func (g *scriptedGrader) Grade(ctx context.Context, req grader.Request) (json.RawMessage, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[req.FileName]++
	attempt := g.calls[req.FileName]
	g.mu.Unlock()
	return g.respond(req, attempt)
}

func (g *scriptedGrader) attempts(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

type stubArchiver struct {
	mu    sync.Mutex
	names []string
}

func (a *stubArchiver) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, name)
	return "https://files.example.com/" + name, nil
}

type failingResults struct {
	repository.ResultRepository
}

func (failingResults) Create(context.Context, *models.GradingResult) error {
	return errors.New("disk full")
}

type orchestratorFixture struct {
	db      *gorm.DB
	batches repository.BatchRepository
	results repository.ResultRepository
	events  *recordingEvents
	batch   models.SubmissionBatch
}

func newOrchestratorFixture(t *testing.T, fileCount int) orchestratorFixture {
	t.Helper()
	db := newTestDB(t)
	assignment := seedAssignment(t, db, "prof-1", models.Assignment{GradingCriteria: "Q1: 10 points", Points: floatPointer(10)})

	batches := repository.NewBatchRepository(db)
	batch := models.SubmissionBatch{
		AssignmentID: assignment.ID,
		BatchName:    "Week 1",
		FileCount:    fileCount,
		Status:       models.BatchStatusGrading,
		UserID:       "prof-1",
	}
	require.NoError(t, batches.Create(context.Background(), &batch))

	return orchestratorFixture{
		db:      db,
		batches: batches,
		results: repository.NewResultRepository(db),
		events:  &recordingEvents{},
		batch:   batch,
	}
}

func testOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Concurrency: 2,
		FileTimeout: 200 * time.Millisecond,
		Retry:       retry.Policy{MaxAttempts: 3, Delay: time.Millisecond},
	}
}

func pdfFiles(names ...string) []IntakeFile {
	files := make([]IntakeFile, 0, len(names))
	for _, name := range names {
		files = append(files, IntakeFile{Name: name, ContentType: "application/pdf", Content: samplePDF})
	}
	return files
}

func (f orchestratorFixture) storedResults(t *testing.T) map[string]models.GradingResult {
	t.Helper()
	rows, err := f.results.ListByBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	byName := make(map[string]models.GradingResult, len(rows))
	for _, row := range rows {
		byName[row.FileName] = row
	}
	return byName
}

func (f orchestratorFixture) storedBatch(t *testing.T) models.SubmissionBatch {
	t.Helper()
	batch, err := f.batches.GetByID(context.Background(), f.batch.ID, "")
	require.NoError(t, err)
	return batch
}

func TestOrchestratorCompletesBatchWithDegradedFile(t *testing.T) {
	f := newOrchestratorFixture(t, 3)
	g := &scriptedGrader{respond: func(req grader.Request, attempt int) (json.RawMessage, error) {
		if req.FileName == "c.pdf" {
			return nil, errors.New("upstream overloaded")
		}
		if req.FileName == "b.pdf" && attempt == 1 {
			return nil, errors.New("connection reset")
		}
		return json.RawMessage(validReply), nil
	}}
	archiver := &stubArchiver{}

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, archiver, f.events, testOrchestratorConfig(), zerolog.Nop())
	batch, err := orchestrator.Run(context.Background(), GradingJob{
		Batch:       f.batch,
		Files:       pdfFiles("a.pdf", "b.pdf", "c.pdf"),
		Criteria:    "Q1: 10 points",
		TotalPoints: 10,
	})

	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, batch.Status)
	require.NotNil(t, batch.CompletedAt)

	stored := f.storedBatch(t)
	require.Equal(t, models.BatchStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	rows := f.storedResults(t)
	require.Len(t, rows, 3)

	require.False(t, rows["a.pdf"].Degraded())
	require.Equal(t, 8.0, rows["a.pdf"].Payload().TotalScore)
	require.True(t, rows["a.pdf"].IsBase64)
	require.Equal(t, "https://files.example.com/"+f.batch.ID+"/a.pdf", rows["a.pdf"].FileURL)

	require.False(t, rows["b.pdf"].Degraded())
	require.Equal(t, 2, g.attempts("b.pdf"))

	require.True(t, rows["c.pdf"].Degraded())
	require.Contains(t, rows["c.pdf"].GradingError, "overloaded")
	require.Equal(t, grader.Empty(), rows["c.pdf"].Payload())
	require.Equal(t, 3, g.attempts("c.pdf"))

	require.Len(t, archiver.names, 3)
	require.Equal(t, []string{models.BatchStatusCompleted}, f.events.statuses())
}

func TestOrchestratorCoercesMalformedReplies(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return json.RawMessage(`{"results":[{"score":"high"}]}`), nil
	}}

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	_, err := orchestrator.Run(context.Background(), GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})
	require.NoError(t, err)

	row := f.storedResults(t)["a.pdf"]
	require.False(t, row.Degraded())
	payload := row.Payload()
	require.Len(t, payload.Results, 1)
	require.Equal(t, grader.PlaceholderQuestion, payload.Results[0].Question)
	require.Equal(t, 0.0, payload.Results[0].Score)
	require.Equal(t, grader.PlaceholderOverallFeedback, payload.OverallFeedback)
}

func TestOrchestratorFailsBatchOnUnauthorized(t *testing.T) {
	f := newOrchestratorFixture(t, 2)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return nil, grader.ErrUnauthorized
	}}

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, f.events, testOrchestratorConfig(), zerolog.Nop())
	batch, err := orchestrator.Run(context.Background(), GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf", "b.pdf")})

	require.ErrorIs(t, err, grader.ErrUnauthorized)
	require.Equal(t, models.BatchStatusFailed, batch.Status)
	require.Equal(t, models.BatchStatusFailed, f.storedBatch(t).Status)
	require.LessOrEqual(t, g.attempts("a.pdf"), 1)
	require.Equal(t, []string{models.BatchStatusFailed}, f.events.statuses())
}

func TestOrchestratorRecordsTimeoutAsDegraded(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		time.Sleep(500 * time.Millisecond)
		return json.RawMessage(validReply), nil
	}}
	cfg := testOrchestratorConfig()
	cfg.FileTimeout = 20 * time.Millisecond

	orchestrator := NewGradingOrchestrator(blockingGrader{g}, f.batches, f.results, nil, nil, cfg, zerolog.Nop())
	batch, err := orchestrator.Run(context.Background(), GradingJob{Batch: f.batch, Files: pdfFiles("slow.pdf")})

	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, batch.Status)
	row := f.storedResults(t)["slow.pdf"]
	require.True(t, row.Degraded())
	require.Equal(t, "grading timed out after 20ms", row.GradingError)
}

// blockingGrader returns as soon as ctx is done, like a real HTTP call would.
type blockingGrader struct {
	inner grader.Grader
}

func (b blockingGrader) Grade(ctx context.Context, req grader.Request) (json.RawMessage, error) {
	type reply struct {
		raw json.RawMessage
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := b.inner.Grade(ctx, req)
		done <- reply{raw, err}
	}()
	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestOrchestratorFailsBatchWhenResultsCannotBeStored(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return json.RawMessage(validReply), nil
	}}

	orchestrator := NewGradingOrchestrator(g, f.batches, failingResults{f.results}, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	batch, err := orchestrator.Run(context.Background(), GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})

	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.Equal(t, models.BatchStatusFailed, batch.Status)
	require.Equal(t, models.BatchStatusFailed, f.storedBatch(t).Status)
}

func TestOrchestratorMarksCancelledBatchFailed(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return json.RawMessage(validReply), nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	batch, err := orchestrator.Run(ctx, GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, models.BatchStatusFailed, batch.Status)
	require.Equal(t, models.BatchStatusFailed, f.storedBatch(t).Status)
	require.Empty(t, f.storedResults(t))
}

func TestOrchestratorStoresTextContentInline(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return json.RawMessage(validReply), nil
	}}

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	_, err := orchestrator.Run(context.Background(), GradingJob{Batch: f.batch, Files: []IntakeFile{
		{Name: "LovelaceAda.txt", ContentType: "text/plain", Content: []byte(`{"answers": [1]}`)},
	}})
	require.NoError(t, err)

	row := f.storedResults(t)["LovelaceAda.txt"]
	require.False(t, row.IsBase64)
	require.Equal(t, `{"answers": [1]}`, row.FileContent)
}

func TestDispatcherShutdownWaitsForBatches(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		time.Sleep(20 * time.Millisecond)
		return json.RawMessage(validReply), nil
	}}
	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	dispatcher := NewGradingDispatcher(orchestrator, zerolog.Nop())

	dispatcher.Dispatch(GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, dispatcher.Shutdown(ctx))
	require.Equal(t, models.BatchStatusCompleted, f.storedBatch(t).Status)
}

func TestDispatcherShutdownCancelsSlowBatches(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		time.Sleep(2 * time.Second)
		return json.RawMessage(validReply), nil
	}}
	cfg := testOrchestratorConfig()
	cfg.FileTimeout = 5 * time.Second
	orchestrator := NewGradingOrchestrator(blockingGrader{g}, f.batches, f.results, nil, nil, cfg, zerolog.Nop())
	dispatcher := NewGradingDispatcher(orchestrator, zerolog.Nop())

	dispatcher.Dispatch(GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, dispatcher.Shutdown(ctx), context.DeadlineExceeded)
	require.Equal(t, models.BatchStatusFailed, f.storedBatch(t).Status)
}

func TestDispatcherRefusesJobsAfterShutdown(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		return json.RawMessage(validReply), nil
	}}
	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, nil, testOrchestratorConfig(), zerolog.Nop())
	dispatcher := NewGradingDispatcher(orchestrator, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, dispatcher.Shutdown(ctx))

	dispatcher.Dispatch(GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})
	dispatcher.Wait()

	require.Zero(t, g.attempts("a.pdf"))
	require.Equal(t, models.BatchStatusFailed, f.storedBatch(t).Status)
	require.Zero(t, countResults(t, f.db, f.batch.ID))
}

// unguardedResults writes rows without checking the batch, like an insert
// that raced the delete.
type unguardedResults struct {
	repository.ResultRepository
	db *gorm.DB
}

func (u unguardedResults) Create(ctx context.Context, row *models.GradingResult) error {
	return u.db.WithContext(ctx).Create(row).Error
}

func gateGrader() (*scriptedGrader, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	g := &scriptedGrader{respond: func(grader.Request, int) (json.RawMessage, error) {
		started <- struct{}{}
		<-release
		return json.RawMessage(validReply), nil
	}}
	return g, started, release
}

func startRun(orchestrator GradingOrchestrator, job GradingJob) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := orchestrator.Run(context.Background(), job)
		done <- err
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not finish")
		return nil
	}
}

func countResults(t *testing.T, db *gorm.DB, batchID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.GradingResult{}).Where("submission_id = ?", batchID).Count(&count).Error)
	return count
}

func TestOrchestratorStopsWritingAfterBatchDeleted(t *testing.T) {
	f := newOrchestratorFixture(t, 2)
	g, started, release := gateGrader()
	cfg := testOrchestratorConfig()
	cfg.FileTimeout = 5 * time.Second
	events := &recordingEvents{}

	orchestrator := NewGradingOrchestrator(g, f.batches, f.results, nil, events, cfg, zerolog.Nop())

	done := startRun(orchestrator, GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf", "b.pdf")})
	<-started
	require.NoError(t, f.batches.Delete(context.Background(), f.batch.ID, "prof-1"))
	close(release)

	require.NoError(t, waitRun(t, done))
	require.Zero(t, countResults(t, f.db, f.batch.ID))
	require.Empty(t, events.statuses())
}

func TestOrchestratorRemovesResultsThatRacedTheDelete(t *testing.T) {
	f := newOrchestratorFixture(t, 1)
	g, started, release := gateGrader()
	cfg := testOrchestratorConfig()
	cfg.FileTimeout = 5 * time.Second

	orchestrator := NewGradingOrchestrator(g, f.batches, unguardedResults{ResultRepository: f.results, db: f.db}, nil, nil, cfg, zerolog.Nop())

	done := startRun(orchestrator, GradingJob{Batch: f.batch, Files: pdfFiles("a.pdf")})
	<-started
	require.NoError(t, f.batches.Delete(context.Background(), f.batch.ID, "prof-1"))
	close(release)

	require.NoError(t, waitRun(t, done))
	require.Zero(t, countResults(t, f.db, f.batch.ID))
}
