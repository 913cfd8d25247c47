// Package tts synthesizes answer phrases to WAV audio through a cloud TTS
// backend, with phoneme-aware SSML construction, silence trimming, and an
// object-store audio cache in front of synthesis.
package tts

import "context"

// Provider is the abstraction over a cloud TTS backend.
//
// Implementations must be safe for concurrent use; phrases of one answer are
// synthesized as they arrive and multiple sessions run in parallel.
type Provider interface {
	// Synthesize renders one SSML document to raw 16 kHz 16-bit mono PCM.
	Synthesize(ctx context.Context, ssmlDoc string) ([]byte, error)
}
