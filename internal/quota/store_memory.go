package quota

import (
	"context"
	"sync"
)

// MemoryStore counts issuance in process memory. Counts reset on restart,
// which under-counts the day at worst; the Redis store exists for
// deployments that care.
type MemoryStore struct {
	mu     sync.Mutex
	issued map[string]int
}

// NewMemoryStore creates an empty in-memory issuance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{issued: make(map[string]int)}
}

func (s *MemoryStore) IssuedOn(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued[day], nil
}

func (s *MemoryStore) AddIssued(_ context.Context, day string, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[day] += n
	return s.issued[day], nil
}
