// Package mock provides a scripted validator.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/pkg/provider/validator"
)

// Provider returns a scripted result and records requests.
type Provider struct {
	mu       sync.Mutex
	requests []validator.Request

	// Result is returned by every Validate call.
	Result *validator.Result

	// Err, when non-nil, is returned instead.
	Err error
}

var _ validator.Provider = (*Provider)(nil)

// New creates a Provider answering with result.
func New(result *validator.Result) *Provider {
	return &Provider{Result: result}
}

// Validate implements validator.Provider.
func (p *Provider) Validate(_ context.Context, req validator.Request) (*validator.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Result, nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []validator.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]validator.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
