// Package mock provides an in-memory blobcache.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/pkg/blobcache"
)

// Store is a concurrent-safe in-memory object store. It records operation
// counts so tests can assert cache behavior.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Gets and Puts count completed operations.
	Gets int
	Puts int

	// GetDelay, when non-zero, is waited before each Get to simulate a slow
	// store. Reads still respect context cancellation.
	GetDelay func(ctx context.Context) error

	// PutErr, when non-nil, is returned by every Put.
	PutErr error
}

var _ blobcache.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Get implements blobcache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.GetDelay != nil {
		if err := s.GetDelay(ctx); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	data, ok := s.objects[key]
	if !ok {
		return nil, blobcache.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put implements blobcache.Store.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts++
	if s.PutErr != nil {
		return s.PutErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = buf
	return nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
