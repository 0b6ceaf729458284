package registry

import (
	"context"
	"sync"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

// MemoryStore keeps the snapshot in process memory. Suitable for a single
// instance; multi-instance deployments share counts through RedisStore.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Empty() {
		return Snapshot{}, sentinel.ErrNotFound
	}
	return s.snap.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.clone()
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, id domain.SiteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Empty() {
		return nil
	}
	count, ok := s.snap.Counts[id]
	if !ok || count == CountUnknown {
		return nil
	}
	s.snap.Counts[id] = count + 1
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
	return nil
}
