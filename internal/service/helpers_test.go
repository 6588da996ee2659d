package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Class{}, &models.Assignment{}, &models.SubmissionBatch{}, &models.GradingResult{}, &models.ActivityLog{}))
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB, userID string, assignment models.Assignment) models.Assignment {
	t.Helper()
	class := models.Class{Title: "Intro to Statistics", Status: models.ClassStatusActive, UserID: userID}
	require.NoError(t, db.Create(&class).Error)

	assignment.ClassID = class.ID
	assignment.UserID = userID
	if assignment.Title == "" {
		assignment.Title = "Problem set"
	}
	if assignment.Type == "" {
		assignment.Type = models.AssignmentTypePDF
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func floatPointer(value float64) *float64 {
	return &value
}

type recordingEvents struct {
	mu     sync.Mutex
	events []dto.BatchEvent
}

func (r *recordingEvents) Publish(_ context.Context, event dto.BatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) Subscribe(string) (<-chan dto.BatchEvent, func()) {
	ch := make(chan dto.BatchEvent)
	return ch, func() {}
}

func (r *recordingEvents) Start(context.Context) {}

func (r *recordingEvents) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]string, 0, len(r.events))
	for _, event := range r.events {
		statuses = append(statuses, event.Status)
	}
	return statuses
}

type recordingDispatcher struct {
	jobs []GradingJob
}

func (r *recordingDispatcher) Dispatch(job GradingJob) {
	r.jobs = append(r.jobs, job)
}
