package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/fridgechef/api/internal/model"
)

// Fields are kind specific columns written in the same conditional update as
// a transition, e.g. processed_units or match_status.
type Fields map[string]any

// Store persists job lifecycle columns. Swap and Delete must be atomic
// conditional writes: they only apply when the stored status still equals
// expected (and for Swap the stored RunSeq equals run), and report whether
// they did.
type Store interface {
	Load(ctx context.Context, kind model.JobKind, id string) (*model.JobState, error)
	Swap(ctx context.Context, kind model.JobKind, id string, expected model.JobStatus, run int, next *model.JobState, extra Fields) (bool, error)
	Delete(ctx context.Context, kind model.JobKind, id string, expected model.JobStatus) (bool, error)
	// Expired lists processing jobs whose lease ended before the given time.
	Expired(ctx context.Context, kind model.JobKind, before time.Time) ([]model.JobState, error)
}

// Observer is told about every persisted transition.
type Observer interface {
	Transition(kind model.JobKind, from, to model.JobStatus)
	Finished(kind model.JobKind, status model.JobStatus, d time.Duration)
	Conflict(kind model.JobKind, op string)
}

type nopObserver struct{}

func (nopObserver) Transition(model.JobKind, model.JobStatus, model.JobStatus) {}
func (nopObserver) Finished(model.JobKind, model.JobStatus, time.Duration)     {}
func (nopObserver) Conflict(model.JobKind, string)                             {}

// Claim names one run of a job, as handed out by Start.
type Claim struct {
	ID  string
	Run int
}

// ClaimOf returns the claim of a job state returned by Start.
func ClaimOf(s *model.JobState) Claim {
	return Claim{ID: s.ID, Run: s.RunSeq}
}

// Manager applies transitions through a Store.
type Manager struct {
	store    Store
	now      func() time.Time
	lease    time.Duration
	observer Observer
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLease sets how long a started job may go without a heartbeat before
// the reaper fails it. Zero disables leases.
func WithLease(d time.Duration) Option {
	return func(m *Manager) { m.lease = d }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithStore returns a copy of the manager writing through s, typically a
// store bound to an open transaction.
func (m *Manager) WithStore(s Store) *Manager {
	c := *m
	c.store = s
	return &c
}

func (m *Manager) Now() time.Time { return m.now().UTC() }

func (m *Manager) Start(ctx context.Context, kind model.JobKind, id string) (*model.JobState, error) {
	return m.apply(ctx, kind, id, nil, "start", nil, func(s model.JobState, now time.Time) (model.JobState, error) {
		return Start(s, now, m.lease)
	})
}

// Heartbeat renews the lease and writes extra progress columns, failing if
// the run is no longer the job's current one.
func (m *Manager) Heartbeat(ctx context.Context, kind model.JobKind, c Claim, extra Fields) (*model.JobState, error) {
	return m.apply(ctx, kind, c.ID, &c.Run, "heartbeat", extra, func(s model.JobState, now time.Time) (model.JobState, error) {
		return Heartbeat(s, now, m.lease)
	})
}

func (m *Manager) Complete(ctx context.Context, kind model.JobKind, c Claim, result any, extra Fields) (*model.JobState, error) {
	data, err := model.NewJSON(result)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, kind, c.ID, &c.Run, "complete", extra, func(s model.JobState, now time.Time) (model.JobState, error) {
		return Complete(s, data, now)
	})
}

func (m *Manager) Fail(ctx context.Context, kind model.JobKind, c Claim, code, message string, extra Fields) (*model.JobState, error) {
	return m.apply(ctx, kind, c.ID, &c.Run, "fail", extra, func(s model.JobState, now time.Time) (model.JobState, error) {
		return Fail(s, code, message, now)
	})
}

func (m *Manager) AwaitReview(ctx context.Context, kind model.JobKind, c Claim, extra Fields) (*model.JobState, error) {
	return m.apply(ctx, kind, c.ID, &c.Run, "await review", extra, AwaitReview)
}

// Resolve completes a job waiting for review. It is a user action, so it is
// not tied to a run.
func (m *Manager) Resolve(ctx context.Context, kind model.JobKind, id string, result any, extra Fields) (*model.JobState, error) {
	data, err := model.NewJSON(result)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, kind, id, nil, "resolve", extra, func(s model.JobState, now time.Time) (model.JobState, error) {
		return Resolve(s, data, now)
	})
}

func (m *Manager) Release(ctx context.Context, kind model.JobKind, c Claim) (*model.JobState, error) {
	return m.apply(ctx, kind, c.ID, &c.Run, "release", nil, Release)
}

// Retry moves a failed job back to pending. The caller re-enqueues it with
// the stored payload.
func (m *Manager) Retry(ctx context.Context, kind model.JobKind, id string) (*model.JobState, error) {
	return m.apply(ctx, kind, id, nil, "retry", nil, Retry)
}

// Delete removes a job unless it is processing.
func (m *Manager) Delete(ctx context.Context, kind model.JobKind, id string) error {
	cur, err := m.store.Load(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := CheckDelete(*cur); err != nil {
		return err
	}

	ok, err := m.store.Delete(ctx, kind, id, cur.Status)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	m.observer.Conflict(kind, "delete")
	now, err := m.store.Load(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := CheckDelete(*now); err != nil {
		return err
	}
	return &TransitionError{Op: "delete", From: cur.Status, Conflict: true}
}

// ReclaimExpired fails every processing job of kind whose lease has run out
// and returns how many it failed. A job that finished or was started again
// in the meantime is skipped. A job renewed after it was listed can still be
// reclaimed; its worker then loses its next conditional update and stops.
func (m *Manager) ReclaimExpired(ctx context.Context, kind model.JobKind) (int, error) {
	now := m.Now()
	expired, err := m.store.Expired(ctx, kind, now)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for i := range expired {
		next, err := Fail(expired[i], model.ErrCodeLeaseExpired, "worker lease expired", now)
		if err != nil {
			continue
		}
		ok, err := m.store.Swap(ctx, kind, next.ID, model.JobStatusProcessing, expired[i].RunSeq, &next, nil)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		m.observe(kind, expired[i], next)
		reclaimed++
	}
	return reclaimed, nil
}

type transitionFunc func(s model.JobState, now time.Time) (model.JobState, error)

// apply loads the job, computes the transition and writes it back on the
// condition that status and RunSeq are unchanged. A non-nil run ties the
// write to that run of the job.
func (m *Manager) apply(ctx context.Context, kind model.JobKind, id string, run *int, op string, extra Fields, fn transitionFunc) (*model.JobState, error) {
	cur, err := m.store.Load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if run != nil && cur.RunSeq != *run {
		m.observer.Conflict(kind, op)
		return nil, &TransitionError{Op: op, From: cur.Status, Stale: true}
	}

	next, err := fn(*cur, m.Now())
	if err != nil {
		return nil, err
	}

	ok, err := m.store.Swap(ctx, kind, id, cur.Status, cur.RunSeq, &next, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.observer.Conflict(kind, op)
		return nil, &TransitionError{Op: op, From: cur.Status, Conflict: true}
	}

	m.observe(kind, *cur, next)
	return &next, nil
}

func (m *Manager) observe(kind model.JobKind, from, to model.JobState) {
	if from.Status == to.Status {
		return
	}
	m.observer.Transition(kind, from.Status, to.Status)
	if to.ProcessingTimeMs != nil && from.Status == model.JobStatusProcessing {
		m.observer.Finished(kind, to.Status, time.Duration(*to.ProcessingTimeMs)*time.Millisecond)
	}
}

// IsConflict reports whether err is a lost compare-and-swap or a write from
// a run that is no longer current.
func IsConflict(err error) bool {
	var te *TransitionError
	return errors.As(err, &te) && (te.Conflict || te.Stale)
}
