package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory. Used for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
	closed bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key Key) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, values map[Key]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, keys ...Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
