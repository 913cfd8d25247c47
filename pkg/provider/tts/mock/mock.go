// Package mock provides a scripted tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vocanta/vocanta/pkg/provider/tts"
)

// Provider records SSML documents and returns scripted PCM.
type Provider struct {
	mu   sync.Mutex
	docs []string

	// PCM is returned by every Synthesize call. Defaults to a short non-zero
	// payload when nil.
	PCM []byte

	// Err, when non-nil, is returned by every Synthesize call.
	Err error
}

var _ tts.Provider = (*Provider)(nil)

// New creates an empty Provider.
func New() *Provider {
	return &Provider{}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, ssmlDoc string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.docs = append(p.docs, ssmlDoc)
	if p.PCM != nil {
		out := make([]byte, len(p.PCM))
		copy(out, p.PCM)
		return out, nil
	}
	return []byte{0x01, 0x02, 0x03, 0x04}, nil
}

// Docs returns every SSML document received so far.
func (p *Provider) Docs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.docs))
	copy(out, p.docs)
	return out
}

// Calls returns the number of Synthesize calls that produced audio.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}
