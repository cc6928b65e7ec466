// Package worker holds the asynq task handlers. Each handler claims its job
// through the lifecycle manager, so a job is processed by at most one
// worker at a time regardless of queue redeliveries.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/websocket"
)

// Run is one job run. It receives the job as started and must complete
// the job itself, in the same transaction as the results it writes.
type Run struct {
	Kind  model.JobKind
	JobID string
	Work  func(ctx context.Context, job *model.JobState) error
	// FailFields are written together with a terminal failure.
	FailFields lifecycle.Fields
	// OnFailed runs after the job was marked failed.
	OnFailed func(ctx context.Context)
}

// Runner claims jobs and turns work errors into lifecycle transitions.
type Runner struct {
	jobs    *lifecycle.Manager
	events  websocket.Publisher
	log     *zap.Logger
	attempt func(context.Context) queue.Attempt
}

func NewRunner(jobs *lifecycle.Manager, events websocket.Publisher, log *zap.Logger) *Runner {
	return &Runner{jobs: jobs, events: events, log: log, attempt: queue.CurrentAttempt}
}

// Execute starts the job, runs the work and records the outcome. The
// returned error is what the queue sees: nil when there is nothing left to
// do, asynq.SkipRetry when the job failed for good.
func (r *Runner) Execute(ctx context.Context, run Run) error {
	log := r.log.With(zap.String("kind", string(run.Kind)), zap.String("job_id", run.JobID))

	job, err := r.jobs.Start(ctx, run.Kind, run.JobID)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		// The enqueueing transaction may not have committed yet.
		return fmt.Errorf("job %s not found: %w", run.JobID, err)
	case errors.Is(err, lifecycle.ErrInvalidState):
		log.Info("job not pending, skipping", zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("failed to start job: %w", err)
	}

	claim := lifecycle.ClaimOf(job)
	log.Info("job started", zap.Int("retry_count", job.RetryCount), zap.Int("run", job.RunSeq))
	r.events.Progress(run.Kind, run.JobID, 0, model.JobStatusProcessing, "Started")

	err = run.Work(ctx, job)
	if err == nil {
		return nil
	}

	if errors.Is(err, lifecycle.ErrInvalidState) || errors.Is(err, lifecycle.ErrNotFound) {
		log.Warn("job changed while processing, dropping run", zap.Error(err))
		return nil
	}

	// The outcome must be recorded even when the server is shutting down.
	ctx = context.WithoutCancel(ctx)

	code, message, isPermanent := classify(err)
	if !isPermanent && !r.attempt(ctx).Final() {
		log.Warn("job attempt failed, releasing for retry", zap.String("code", code), zap.Error(err))
		if _, rerr := r.jobs.Release(ctx, run.Kind, claim); rerr != nil {
			log.Error("failed to release job", zap.Error(rerr))
		}
		return err
	}

	log.Error("job failed", zap.String("code", code), zap.Bool("permanent", isPermanent), zap.Error(err))
	if _, ferr := r.jobs.Fail(ctx, run.Kind, claim, code, message, run.FailFields); ferr != nil {
		log.Error("failed to record job failure", zap.Error(ferr))
		return err
	}
	if run.OnFailed != nil {
		run.OnFailed(ctx)
	}
	r.events.Error(run.Kind, run.JobID, code, message)
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}
