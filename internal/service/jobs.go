package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/store"
	"go.uber.org/zap"
)

// JobQueue is the part of the queue client services use.
type JobQueue interface {
	queue.Enqueuer
	Cancel(taskType, jobID string, retryCount int) error
}

// jobs holds what every job owning service shares: creating a row and
// enqueueing its first run in one transaction, retry and delete.
type jobs struct {
	db         *store.DB
	lifecycle  *lifecycle.Manager
	queue      JobQueue
	maxRetries int
	log        *zap.Logger
}

// newState builds the lifecycle columns of a fresh job.
func (j *jobs) newState(id, userID string, payload any) (model.JobState, error) {
	data, err := model.NewJSON(payload)
	if err != nil {
		return model.JobState{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	s := lifecycle.NewJobState(id, userID, j.maxRetries, j.lifecycle.Now())
	s.Payload = data
	return s, nil
}

// create inserts the job through insert and enqueues run 0 before the
// transaction commits. A worker that picks the task up before the commit
// does not find the row and the queue retries it.
func (j *jobs) create(ctx context.Context, taskType string, state *model.JobState, insert func(*store.Repos) error) error {
	return j.db.Transact(ctx, func(r *store.Repos) error {
		if err := insert(r); err != nil {
			return err
		}
		return j.queue.Enqueue(ctx, taskType, state.ID, 0, state.Payload)
	})
}

// retry moves a failed job back to pending and enqueues the new run.
func (j *jobs) retry(ctx context.Context, kind model.JobKind, taskType, id string) (*model.JobState, error) {
	var next *model.JobState
	err := j.db.Transact(ctx, func(r *store.Repos) error {
		var err error
		next, err = j.lifecycle.WithStore(r.Jobs).Retry(ctx, kind, id)
		if err != nil {
			return err
		}
		return j.queue.Enqueue(ctx, taskType, id, next.RetryCount, next.Payload)
	})
	if err != nil {
		return nil, err
	}

	j.log.Info("job retried",
		zap.String("kind", string(kind)),
		zap.String("job_id", id),
		zap.Int("retry_count", next.RetryCount),
	)
	return next, nil
}

// remove deletes a job that is not processing and drops its queued run.
func (j *jobs) remove(ctx context.Context, kind model.JobKind, taskType string, state *model.JobState) error {
	if err := j.lifecycle.Delete(ctx, kind, state.ID); err != nil {
		return err
	}
	if err := j.queue.Cancel(taskType, state.ID, state.RetryCount); err != nil {
		j.log.Warn("failed to cancel queued task", zap.String("job_id", state.ID), zap.Error(err))
	}
	return nil
}

// IsNotFound reports whether err means the requested row does not exist or
// is not visible to the user.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, lifecycle.ErrNotFound)
}
