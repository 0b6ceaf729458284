package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

// MemoryRunStore keeps batch runs in process memory.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[domain.BatchID]BatchRun
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[domain.BatchID]BatchRun)}
}

func (s *MemoryRunStore) Create(_ context.Context, run BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("batch run %s: %w", run.ID, sentinel.ErrConflict)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryRunStore) Update(_ context.Context, run BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("batch run %s: %w", run.ID, sentinel.ErrNotFound)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id domain.BatchID) (BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[id]
	if !exists {
		return BatchRun{}, fmt.Errorf("batch run %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneRun(run), nil
}

func (s *MemoryRunStore) List(_ context.Context, limit int) ([]BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRun(run BatchRun) BatchRun {
	out := run
	out.Requested = append([]string(nil), run.Requested...)
	out.Admitted = append([]string(nil), run.Admitted...)
	out.Deferred = append([]string(nil), run.Deferred...)
	out.Successful = append([]DomainResult(nil), run.Successful...)
	out.Failed = append([]DomainResult(nil), run.Failed...)
	out.Skipped = append([]DomainResult(nil), run.Skipped...)
	return out
}
