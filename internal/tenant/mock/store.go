// Package mock provides an in-memory tenant.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/internal/tenant"
)

// Store serves tenant config lists from memory and counts loads.
type Store struct {
	mu      sync.Mutex
	tenants map[string][]tenant.Config
	loads   int

	// LoadErr, when non-nil, is returned by every Load.
	LoadErr error
}

var _ tenant.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{tenants: make(map[string][]tenant.Config)}
}

// Set installs the config list for tenantID.
func (s *Store) Set(tenantID string, configs []tenant.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = configs
}

// Load implements tenant.Store.
func (s *Store) Load(_ context.Context, tenantID string) ([]tenant.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	configs, ok := s.tenants[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return configs, nil
}

// Loads returns the number of Load calls.
func (s *Store) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
