// Package mock provides a scripted generator.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/pkg/provider/generator"
)

// Provider streams scripted chunks and records requests.
type Provider struct {
	mu       sync.Mutex
	requests []generator.Request

	// Chunks are emitted in order by every Stream call.
	Chunks []generator.Chunk

	// Err, when non-nil, fails Stream before any chunk is emitted.
	Err error
}

var _ generator.Provider = (*Provider)(nil)

// New creates a Provider streaming texts as one chunk each, followed by a
// terminal "stop" chunk.
func New(texts ...string) *Provider {
	p := &Provider{}
	for _, t := range texts {
		p.Chunks = append(p.Chunks, generator.Chunk{Text: t})
	}
	p.Chunks = append(p.Chunks, generator.Chunk{FinishReason: "stop"})
	return p
}

// Stream implements generator.Provider.
func (p *Provider) Stream(ctx context.Context, req generator.Request) (<-chan generator.Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	chunks := make([]generator.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	err := p.Err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan generator.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []generator.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]generator.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
