// Package mock provides a scripted kmsearch.Searcher for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/pkg/kmsearch"
)

// Searcher returns scripted results per query content.
type Searcher struct {
	mu      sync.Mutex
	results map[string][]kmsearch.Item
	errs    map[string]error
	queries []kmsearch.Query
}

var _ kmsearch.Searcher = (*Searcher)(nil)

// New creates an empty Searcher.
func New() *Searcher {
	return &Searcher{
		results: make(map[string][]kmsearch.Item),
		errs:    make(map[string]error),
	}
}

// Respond scripts the documents returned for content.
func (s *Searcher) Respond(content string, docs ...kmsearch.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[content] = docs
}

// Fail scripts an error for content.
func (s *Searcher) Fail(content string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[content] = err
}

// Search implements kmsearch.Searcher.
func (s *Searcher) Search(_ context.Context, q kmsearch.Query) ([]kmsearch.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if err, ok := s.errs[q.Content]; ok {
		return nil, err
	}
	return s.results[q.Content], nil
}

// Queries returns every query received so far.
func (s *Searcher) Queries() []kmsearch.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kmsearch.Query, len(s.queries))
	copy(out, s.queries)
	return out
}
