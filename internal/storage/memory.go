package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryChunkStore is an in-memory chunk store for tests and development.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]byte
}

// NewMemoryChunkStore creates an empty in-memory store.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string][]byte)}
}

func memKey(trackID string, index int) string {
	return fmt.Sprintf("%s/%d", trackID, index)
}

// Get fetches one encrypted chunk.
func (s *MemoryChunkStore) Get(_ context.Context, trackID string, index int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.chunks[memKey(trackID, index)]
	if !ok {
		return nil, ErrChunkNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores one encrypted chunk.
func (s *MemoryChunkStore) Put(_ context.Context, trackID string, index int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.chunks[memKey(trackID, index)] = stored
	return nil
}
