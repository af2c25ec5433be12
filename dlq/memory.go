package dlq

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory DLQ store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	messages []*Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	s.messages = append(s.messages, &copied)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, 0, len(s.messages))
	for i := len(s.messages) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		copied := *s.messages[i]
		out = append(out, &copied)
	}
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.messages {
		if msg.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of parked messages.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var _ Store = (*MemoryStore)(nil)
