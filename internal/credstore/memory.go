package credstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and as a degraded
// fallback when no durable backend can be opened.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, blob []byte) error {
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.mu.Lock()
	s.blobs[sessionID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.blobs, sessionID)
	s.mu.Unlock()
	return nil
}
