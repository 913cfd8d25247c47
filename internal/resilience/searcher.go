package resilience

import (
	"context"

	"github.com/vocanta/vocanta/pkg/kmsearch"
)

// Searcher wraps a [kmsearch.Searcher] with a circuit breaker shared across
// all tenants. Knowledge search fans out several queries per request, so a
// struggling search backend would otherwise multiply its own load.
type Searcher struct {
	inner   kmsearch.Searcher
	breaker *CircuitBreaker
}

var _ kmsearch.Searcher = (*Searcher)(nil)

// NewSearcher creates a breaker-protected Searcher around inner.
func NewSearcher(inner kmsearch.Searcher, cfg CircuitBreakerConfig) *Searcher {
	if cfg.Name == "" {
		cfg.Name = "km_search"
	}
	return &Searcher{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Search forwards to the wrapped searcher when the breaker allows it.
func (s *Searcher) Search(ctx context.Context, q kmsearch.Query) ([]kmsearch.Item, error) {
	var docs []kmsearch.Item
	err := s.breaker.Execute(func() error {
		var innerErr error
		docs, innerErr = s.inner.Search(ctx, q)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// State exposes the breaker state for health reporting.
func (s *Searcher) State() State {
	return s.breaker.State()
}
