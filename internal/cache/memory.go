package cache

import (
	"context"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

type phaseEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps records in process. It is safe for concurrent use and copies jobs
// on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	phases   map[string]map[string]phaseEntry
	phaseTTL time.Duration
	now      Clock
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*model.Job),
		phases:   make(map[string]map[string]phaseEntry),
		phaseTTL: model.DefaultJobTTL,
		now:      time.Now,
	}
}

// WithClock replaces the store's time source.
func (s *MemoryStore) WithClock(now Clock) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, job *model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := job.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || j.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return j.Clone()
}

func (s *MemoryStore) List(ctx context.Context) ([]model.JobSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	s.mu.RLock()
	out := make([]model.JobSummary, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.Expired(now) {
			out = append(out, j.Summary())
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.phases, id)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*model.Job)
	s.phases = make(map[string]map[string]phaseEntry)
	return nil
}

func (s *MemoryStore) PutPhase(ctx context.Context, jobID, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.now().Add(s.phaseTTL)
	if j, ok := s.jobs[jobID]; ok && !j.ExpiresAt.IsZero() {
		expires = j.ExpiresAt
	}
	m, ok := s.phases[jobID]
	if !ok {
		m = make(map[string]phaseEntry)
		s.phases[jobID] = m
	}
	m[key] = phaseEntry{data: append([]byte(nil), data...), expiresAt: expires}
	return nil
}

func (s *MemoryStore) GetPhase(ctx context.Context, jobID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.phases[jobID][key]
	if !ok || s.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (s *MemoryStore) DeletePhases(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phases, jobID)
	return nil
}

func (s *MemoryStore) Evict(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Expired(now) {
			delete(s.jobs, id)
			delete(s.phases, id)
			n++
		}
	}
	for id, m := range s.phases {
		for key, e := range m {
			if now.After(e.expiresAt) {
				delete(m, key)
			}
		}
		if len(m) == 0 {
			delete(s.phases, id)
		}
	}
	return n, nil
}
