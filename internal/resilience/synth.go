package resilience

import (
	"context"

	"github.com/vocanta/vocanta/pkg/provider/tts"
)

// Synth wraps a [tts.Provider] with a circuit breaker. Synthesis failures
// already degrade a session to text-only; the breaker additionally stops new
// sessions from waiting on a speech backend that is known to be down.
type Synth struct {
	inner   tts.Provider
	breaker *CircuitBreaker
}

var _ tts.Provider = (*Synth)(nil)

// NewSynth creates a breaker-protected Synth around inner.
func NewSynth(inner tts.Provider, cfg CircuitBreakerConfig) *Synth {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &Synth{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// WrapSynth wraps inner with an existing shared breaker. Used when provider
// instances are built per request but failures should be counted together.
func WrapSynth(inner tts.Provider, breaker *CircuitBreaker) *Synth {
	return &Synth{inner: inner, breaker: breaker}
}

// Synthesize forwards to the wrapped provider when the breaker allows it.
func (s *Synth) Synthesize(ctx context.Context, ssmlDoc string) ([]byte, error) {
	var out []byte
	err := s.breaker.Execute(func() error {
		var innerErr error
		out, innerErr = s.inner.Synthesize(ctx, ssmlDoc)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// State exposes the breaker state for health reporting.
func (s *Synth) State() State {
	return s.breaker.State()
}
