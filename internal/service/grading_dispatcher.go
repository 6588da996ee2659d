package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// GradingDispatcher runs grading jobs in the background and tracks them so
// shutdown can wait for in-flight batches.
type GradingDispatcher struct {
	orchestrator GradingOrchestrator
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	closed       bool
	logger       zerolog.Logger
}

// NewGradingDispatcher builds a dispatcher whose jobs share one base context.
func NewGradingDispatcher(orchestrator GradingOrchestrator, logger zerolog.Logger) *GradingDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &GradingDispatcher{
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With().Str("component", "grading_dispatcher").Logger(),
	}
}

// Dispatch starts grading job in its own goroutine. Once Shutdown has begun
// the job is not graded; its batch is marked failed before Dispatch returns.
func (d *GradingDispatcher) Dispatch(job GradingJob) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.refuse(job)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if _, err := d.orchestrator.Run(d.ctx, job); err != nil {
			d.logger.Error().Err(err).Str("batch_id", job.Batch.ID).Msg("batch grading failed")
		}
	}()
}

func (d *GradingDispatcher) refuse(job GradingJob) {
	d.logger.Warn().Str("batch_id", job.Batch.ID).Msg("dispatcher shut down, batch not graded")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.orchestrator.Run(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Error().Err(err).Str("batch_id", job.Batch.ID).Msg("failed to record refused batch")
	}
}

// Wait blocks until every dispatched job has finished.
func (d *GradingDispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight jobs until ctx expires, then cancels them so
// they record a failed status, and waits for that to happen.
func (d *GradingDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn().Msg("cancelling in-flight grading batches")
		d.cancel()
		<-done
		return ctx.Err()
	}
}
