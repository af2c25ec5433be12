package poison

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single-instance deployments
// and tests.
type MemoryStore struct {
	mu         sync.Mutex
	failures   map[string]int
	quarantine map[string]time.Time
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		failures:   make(map[string]int),
		quarantine: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, messageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[messageID]++
	return s.failures[messageID], nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, messageID)
	return nil
}

// Quarantine implements Store.
func (s *MemoryStore) Quarantine(_ context.Context, messageID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantine[messageID] = s.now().Add(ttl)
	return nil
}

// Quarantined implements Store.
func (s *MemoryStore) Quarantined(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.quarantine[messageID]
	if !ok {
		return false, nil
	}
	if s.now().After(until) {
		delete(s.quarantine, messageID)
		return false, nil
	}
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
