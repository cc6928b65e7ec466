package lifecycle

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/fridgechef/api/internal/model"
)

type memoryKey struct {
	kind model.JobKind
	id   string
}

type memoryEntry struct {
	state model.JobState
	extra Fields
}

// MemoryStore is a Store kept in a map. Swap holds a mutex so concurrent
// transitions behave like the conditional UPDATE of the SQL store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[memoryKey]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[memoryKey]*memoryEntry)}
}

// Put inserts or replaces a job.
func (s *MemoryStore) Put(kind model.JobKind, state model.JobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[memoryKey{kind, state.ID}] = &memoryEntry{state: state, extra: Fields{}}
}

// Extra returns the kind specific columns written alongside transitions.
func (s *MemoryStore) Extra(kind model.JobKind, id string) Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[memoryKey{kind, id}]
	if !ok {
		return nil
	}
	return maps.Clone(e.extra)
}

func (s *MemoryStore) Load(_ context.Context, kind model.JobKind, id string) (*model.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[memoryKey{kind, id}]
	if !ok {
		return nil, ErrNotFound
	}
	state := e.state
	return &state, nil
}

func (s *MemoryStore) Swap(_ context.Context, kind model.JobKind, id string, expected model.JobStatus, run int, next *model.JobState, extra Fields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[memoryKey{kind, id}]
	if !ok || e.state.Status != expected || e.state.RunSeq != run {
		return false, nil
	}
	e.state = *next
	maps.Copy(e.extra, extra)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, kind model.JobKind, id string, expected model.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{kind, id}
	e, ok := s.jobs[key]
	if !ok || e.state.Status != expected {
		return false, nil
	}
	delete(s.jobs, key)
	return true, nil
}

func (s *MemoryStore) Expired(_ context.Context, kind model.JobKind, before time.Time) ([]model.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.JobState
	for key, e := range s.jobs {
		if key.kind != kind || e.state.Status != model.JobStatusProcessing {
			continue
		}
		if e.state.LeaseExpiresAt != nil && e.state.LeaseExpiresAt.Before(before) {
			out = append(out, e.state)
		}
	}
	return out, nil
}
