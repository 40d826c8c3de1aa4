package dedup

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node
// deployments that can tolerate losing dedup state on restart.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, key string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return AlreadyExists, nil
	}
	s.seen[key] = struct{}{}
	return Inserted, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seen, key)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.seen)), nil
}

func (s *MemoryStore) Close() {}
