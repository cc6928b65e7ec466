// Package queue wraps asynq: task encoding, enqueue options, the retry
// backoff and the server configuration shared by every job kind.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fridgechef/api/internal/config"
	"github.com/fridgechef/api/internal/model"
)

// Queue names
const (
	QueueScans   = "scans"
	QueueMatches = "matches"
	QueueLookups = "lookups"
)

// QueueFor maps a task type to the queue its workers poll.
func QueueFor(taskType string) string {
	switch taskType {
	case model.TaskTypeMatch:
		return QueueMatches
	case model.TaskTypeLookup:
		return QueueLookups
	default:
		return QueueScans
	}
}

// TaskPayload is the asynq task body: the job id plus the job's stored
// payload, so a retry re-submits exactly what the first run received.
type TaskPayload struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

func NewTask(taskType, jobID string, payload model.JSON) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID, Payload: json.RawMessage(payload)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

func DecodeTask(t *asynq.Task) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID == "" {
		return p, errors.New("task payload has no job id")
	}
	return p, nil
}

// TaskID is unique per job run, so enqueueing the same run twice is a no-op
// and a retry gets a fresh id.
func TaskID(jobID string, retryCount int) string {
	return fmt.Sprintf("%s:%d", jobID, retryCount)
}

// Enqueuer submits job runs. Services depend on this rather than *Client.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType, jobID string, retryCount int, payload model.JSON) error
}

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	maxRetry  int
}

var _ Enqueuer = (*Client)(nil)

func NewClient(redisOpt asynq.RedisClientOpt, cfg config.QueueConfig) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		maxRetry:  max(cfg.MaxAttempts-1, 0),
	}
}

func (c *Client) Enqueue(ctx context.Context, taskType, jobID string, retryCount int, payload model.JSON) error {
	task, err := NewTask(taskType, jobID, payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueFor(taskType)),
		asynq.TaskID(TaskID(jobID, retryCount)),
		asynq.MaxRetry(c.maxRetry),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Cancel drops a queued run that has not started. Missing tasks are ignored.
func (c *Client) Cancel(taskType, jobID string, retryCount int) error {
	err := c.inspector.DeleteTask(QueueFor(taskType), TaskID(jobID, retryCount))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// RetryDelay is exponential backoff: base, 2*base, 4*base, ...
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return base << min(n, 16)
	}
}

// Attempt describes the current delivery of a task.
type Attempt struct {
	Retried  int
	MaxRetry int
}

// Final reports whether no queue retry follows this attempt.
func (a Attempt) Final() bool { return a.Retried >= a.MaxRetry }

// CurrentAttempt reads the attempt from a handler context. Outside a
// handler every attempt is final.
func CurrentAttempt(ctx context.Context) Attempt {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return Attempt{}
	}
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return Attempt{Retried: retried, MaxRetry: maxRetry}
}
