package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Documents are stored in
// encoded form so callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Load returns a copy of the stored document.
func (s *MemoryStore) Load(ctx context.Context, namespace string) (map[string]interface{}, error) {
	s.mu.RLock()
	data := s.docs[namespace]
	s.mu.RUnlock()
	return decode(data)
}

// Save replaces the stored document.
func (s *MemoryStore) Save(ctx context.Context, namespace string, doc map[string]interface{}) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[namespace] = data
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
