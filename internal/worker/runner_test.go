package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
)

type event struct {
	kind   string
	jobID  string
	status model.JobStatus
	code   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) Progress(_ model.JobKind, jobID string, _ int, status model.JobStatus, _ string) {
	p.add(event{kind: "progress", jobID: jobID, status: status})
}

func (p *recordingPublisher) Complete(_ model.JobKind, jobID string, status model.JobStatus, _ any) {
	p.add(event{kind: "complete", jobID: jobID, status: status})
}

func (p *recordingPublisher) Error(_ model.JobKind, jobID, code, _ string) {
	p.add(event{kind: "error", jobID: jobID, code: code})
}

func (p *recordingPublisher) add(e event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.kind
	}
	return out
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRunner(t *testing.T, attempt queue.Attempt) (*Runner, *lifecycle.Manager, *lifecycle.MemoryStore, *recordingPublisher) {
	t.Helper()
	store := lifecycle.NewMemoryStore()
	jobs := lifecycle.NewManager(store,
		lifecycle.WithClock(func() time.Time { return testNow }),
		lifecycle.WithLease(time.Minute),
	)
	pub := &recordingPublisher{}
	r := NewRunner(jobs, pub, zap.NewNop())
	r.attempt = func(context.Context) queue.Attempt { return attempt }
	return r, jobs, store, pub
}

func putPending(store *lifecycle.MemoryStore, kind model.JobKind, id string) {
	store.Put(kind, lifecycle.NewJobState(id, "user-1", 3, testNow.Add(-time.Minute)))
}

func loadStatus(t *testing.T, store *lifecycle.MemoryStore, kind model.JobKind, id string) *model.JobState {
	t.Helper()
	s, err := store.Load(context.Background(), kind, id)
	require.NoError(t, err)
	return s
}

func TestRunner_Success(t *testing.T) {
	r, jobs, store, pub := newTestRunner(t, queue.Attempt{})
	putPending(store, model.JobKindMatch, "j1")

	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindMatch,
		JobID: "j1",
		Work: func(ctx context.Context, job *model.JobState) error {
			assert.Equal(t, model.JobStatusProcessing, job.Status)
			_, err := jobs.Complete(ctx, model.JobKindMatch, lifecycle.ClaimOf(job), map[string]int{"n": 1}, nil)
			return err
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, loadStatus(t, store, model.JobKindMatch, "j1").Status)
	assert.Equal(t, []string{"progress"}, pub.kinds())
}

func TestRunner_NotFoundIsRetried(t *testing.T) {
	r, _, _, _ := newTestRunner(t, queue.Attempt{})

	called := false
	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindScan,
		JobID: "missing",
		Work:  func(context.Context, *model.JobState) error { called = true; return nil },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, called)
}

func TestLookupWorker_LogsUnreadableTaskPayload(t *testing.T) {
	r, _, _, _ := newTestRunner(t, queue.Attempt{})
	core, logs := observer.New(zapcore.WarnLevel)
	w := &LookupWorker{runner: r, log: zap.New(core)}

	task, err := queue.NewTask(model.TaskTypeLookup, "missing", model.JSON(`["not", "an", "object"]`))
	require.NoError(t, err)

	err = w.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	entries := logs.FilterMessage("unreadable lookup task payload").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "missing", entries[0].ContextMap()["job_id"])
}

func TestRunner_SkipsJobThatIsNotPending(t *testing.T) {
	r, jobs, store, _ := newTestRunner(t, queue.Attempt{})
	putPending(store, model.JobKindScan, "j1")
	_, err := jobs.Start(context.Background(), model.JobKindScan, "j1")
	require.NoError(t, err)

	called := false
	err = r.Execute(context.Background(), Run{
		Kind:  model.JobKindScan,
		JobID: "j1",
		Work:  func(context.Context, *model.JobState) error { called = true; return nil },
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunner_PermanentErrorFailsImmediately(t *testing.T) {
	r, _, store, pub := newTestRunner(t, queue.Attempt{Retried: 0, MaxRetry: 2})
	putPending(store, model.JobKindScan, "j1")

	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindScan,
		JobID: "j1",
		Work: func(context.Context, *model.JobState) error {
			return permanent(model.ErrCodeInvalidImage, "not a fridge")
		},
	})
	assert.ErrorIs(t, err, asynq.SkipRetry)

	s := loadStatus(t, store, model.JobKindScan, "j1")
	assert.Equal(t, model.JobStatusFailed, s.Status)
	require.NotNil(t, s.ErrorCode)
	assert.Equal(t, model.ErrCodeInvalidImage, *s.ErrorCode)
	require.NotNil(t, s.ErrorMessage)
	assert.Equal(t, "not a fridge", *s.ErrorMessage)
	assert.True(t, s.CanRetry())
	assert.Equal(t, []string{"progress", "error"}, pub.kinds())
}

func TestRunner_TransientErrorReleasesUntilFinalAttempt(t *testing.T) {
	r, _, store, pub := newTestRunner(t, queue.Attempt{Retried: 0, MaxRetry: 2})
	putPending(store, model.JobKindScan, "j1")

	boom := errors.New("vision timeout")
	run := Run{
		Kind:  model.JobKindScan,
		JobID: "j1",
		Work: func(context.Context, *model.JobState) error {
			return transient(model.ErrCodeExtractionFailed, "could not read page 1", boom)
		},
	}

	err := r.Execute(context.Background(), run)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	s := loadStatus(t, store, model.JobKindScan, "j1")
	assert.Equal(t, model.JobStatusPending, s.Status)
	assert.Nil(t, s.StartedAt)

	r.attempt = func(context.Context) queue.Attempt { return queue.Attempt{Retried: 2, MaxRetry: 2} }
	err = r.Execute(context.Background(), run)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	s = loadStatus(t, store, model.JobKindScan, "j1")
	assert.Equal(t, model.JobStatusFailed, s.Status)
	assert.Equal(t, model.ErrCodeExtractionFailed, *s.ErrorCode)
	assert.Equal(t, []string{"progress", "progress", "error"}, pub.kinds())
}

func TestRunner_UnclassifiedErrorUsesUnknownCode(t *testing.T) {
	r, _, store, _ := newTestRunner(t, queue.Attempt{})
	putPending(store, model.JobKindMatch, "j1")

	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindMatch,
		JobID: "j1",
		Work:  func(context.Context, *model.JobState) error { return errors.New("boom") },
	})
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, model.ErrCodeUnknown, *loadStatus(t, store, model.JobKindMatch, "j1").ErrorCode)
}

func TestRunner_FailFieldsAndHook(t *testing.T) {
	r, _, store, _ := newTestRunner(t, queue.Attempt{})
	putPending(store, model.JobKindLookup, "j1")

	hooked := false
	err := r.Execute(context.Background(), Run{
		Kind:       model.JobKindLookup,
		JobID:      "j1",
		Work:       func(context.Context, *model.JobState) error { return searchError(errors.New("dial tcp")) },
		FailFields: lifecycle.Fields{"match_status": model.MatchStatusFailed},
		OnFailed:   func(context.Context) { hooked = true },
	})
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.True(t, hooked)
	assert.Equal(t, model.MatchStatusFailed, store.Extra(model.JobKindLookup, "j1")["match_status"])
	assert.Equal(t, model.ErrCodeSearchFailed, *loadStatus(t, store, model.JobKindLookup, "j1").ErrorCode)
}

func TestRunner_JobChangedUnderWorkIsDropped(t *testing.T) {
	r, jobs, store, pub := newTestRunner(t, queue.Attempt{})
	putPending(store, model.JobKindScan, "j1")

	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindScan,
		JobID: "j1",
		Work: func(ctx context.Context, job *model.JobState) error {
			// the reaper got there first
			_, err := jobs.Fail(ctx, model.JobKindScan, lifecycle.ClaimOf(job), model.ErrCodeLeaseExpired, "worker lease expired", nil)
			require.NoError(t, err)
			_, err = jobs.Heartbeat(ctx, model.JobKindScan, lifecycle.ClaimOf(job), nil)
			return err
		},
	})
	require.NoError(t, err)

	s := loadStatus(t, store, model.JobKindScan, "j1")
	assert.Equal(t, model.ErrCodeLeaseExpired, *s.ErrorCode)
	assert.Equal(t, []string{"progress"}, pub.kinds())
}

func TestRunner_SupersededRunLeavesNewRunAlone(t *testing.T) {
	r, jobs, store, pub := newTestRunner(t, queue.Attempt{Retried: 0, MaxRetry: 3})
	putPending(store, model.JobKindScan, "j1")

	var current *model.JobState
	err := r.Execute(context.Background(), Run{
		Kind:  model.JobKindScan,
		JobID: "j1",
		Work: func(ctx context.Context, job *model.JobState) error {
			// reaped, retried by the user and picked up by another worker
			_, err := jobs.Fail(ctx, model.JobKindScan, lifecycle.ClaimOf(job), model.ErrCodeLeaseExpired, "worker lease expired", nil)
			require.NoError(t, err)
			_, err = jobs.Retry(ctx, model.JobKindScan, "j1")
			require.NoError(t, err)
			current, err = jobs.Start(ctx, model.JobKindScan, "j1")
			require.NoError(t, err)

			_, err = jobs.Heartbeat(ctx, model.JobKindScan, lifecycle.ClaimOf(job), lifecycle.Fields{"processed_units": 1})
			if err != nil {
				return err
			}
			return transient(model.ErrCodeStorage, "late", errors.New("late write"))
		},
	})
	require.NoError(t, err)

	s := loadStatus(t, store, model.JobKindScan, "j1")
	assert.Equal(t, model.JobStatusProcessing, s.Status)
	assert.Equal(t, current.RunSeq, s.RunSeq)
	assert.NotContains(t, store.Extra(model.JobKindScan, "j1"), "processed_units")
	assert.Equal(t, []string{"progress"}, pub.kinds())
}

func TestReaper_Sweep(t *testing.T) {
	store := lifecycle.NewMemoryStore()
	now := testNow
	jobs := lifecycle.NewManager(store,
		lifecycle.WithClock(func() time.Time { return now }),
		lifecycle.WithLease(time.Minute),
	)
	ctx := context.Background()

	putPending(store, model.JobKindScan, "stuck")
	putPending(store, model.JobKindLookup, "alive")
	_, err := jobs.Start(ctx, model.JobKindScan, "stuck")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = jobs.Start(ctx, model.JobKindLookup, "alive")
	require.NoError(t, err)

	reaper := NewReaper(jobs, time.Minute, zap.NewNop())
	assert.Equal(t, 1, reaper.Sweep(ctx))

	s := loadStatus(t, store, model.JobKindScan, "stuck")
	assert.Equal(t, model.JobStatusFailed, s.Status)
	assert.Equal(t, model.ErrCodeLeaseExpired, *s.ErrorCode)
	assert.Equal(t, model.JobStatusProcessing, loadStatus(t, store, model.JobKindLookup, "alive").Status)

	assert.Zero(t, reaper.Sweep(ctx))
}
