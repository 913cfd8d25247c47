package tts

import (
	"context"
	"fmt"

	"github.com/vocanta/vocanta/pkg/audio"
	"github.com/vocanta/vocanta/pkg/blobcache"
	"github.com/vocanta/vocanta/pkg/provider/tts/ssml"
)

// Voice is the cloud voice a phrase is spoken with.
type Voice struct {
	// Language is the BCP-47 tag the voice speaks.
	Language string

	// Name is the cloud voice name, e.g. "th-TH-PremwadeeNeural".
	Name string

	Pitch string
	Rate  string

	// PhonemeURL is the per-voice pronunciation dictionary.
	PhonemeURL string
}

// Params describes one phrase synthesis.
type Params struct {
	// Text is the plain phrase to speak.
	Text string

	Voice Voice

	// GlobalPhonemeURL is the tenant-wide pronunciation dictionary merged
	// under the voice's own.
	GlobalPhonemeURL string

	// LexiconURL references a remote lexicon, used only when no inline
	// phoneme substitution applies.
	LexiconURL string

	// Trim removes leading/trailing silence and shrinks long mid-phrase
	// pauses before caching.
	Trim bool
}

// Synthesizer produces WAV audio for phrases: SSML construction with phoneme
// substitution, an audio-cache lookup keyed on the substituted text, cloud
// synthesis on a miss, then trim, WAV wrap, and a fire-and-forget cache
// write.
type Synthesizer struct {
	provider Provider
	patterns *ssml.PatternCache
	cache    *blobcache.Cache
}

// SynthOption is a functional option for [NewSynthesizer].
type SynthOption func(*Synthesizer)

// WithCache enables the audio cache. Without it every phrase is synthesized
// fresh.
func WithCache(cache *blobcache.Cache) SynthOption {
	return func(s *Synthesizer) { s.cache = cache }
}

// NewSynthesizer creates a Synthesizer around provider. patterns must not be
// nil; pass a cache via [WithCache] to avoid re-synthesizing repeated
// phrases.
func NewSynthesizer(provider Provider, patterns *ssml.PatternCache, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{provider: provider, patterns: patterns}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize returns WAV audio for one phrase. Cache hits skip the cloud
// call entirely; the cache key is the phoneme-substituted text, so two
// phrases that substitute identically share one entry.
func (s *Synthesizer) Synthesize(ctx context.Context, p Params) ([]byte, error) {
	language := ssml.NormalizeLocale(p.Voice.Language)
	rules := s.patterns.Rules(ctx, ssml.Sources{
		GlobalURL: p.GlobalPhonemeURL,
		VoiceURL:  p.Voice.PhonemeURL,
		Language:  language,
	})

	doc, substituted := ssml.Build(ssml.Document{
		Text:       p.Text,
		Language:   language,
		VoiceName:  p.Voice.Name,
		Pitch:      p.Voice.Pitch,
		Rate:       p.Voice.Rate,
		LexiconURI: p.LexiconURL,
		Rules:      rules,
	})

	if s.cache != nil {
		if wav, ok := s.cache.Get(ctx, substituted, language, p.Voice.Name); ok {
			return wav, nil
		}
	}

	pcm, err := s.provider.Synthesize(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("tts: synthesize %q: %w", p.Voice.Name, err)
	}
	if p.Trim {
		pcm = audio.TrimSilence(pcm, audio.DefaultSilenceThreshold)
	}
	wav := audio.WrapPCM(pcm)

	if s.cache != nil {
		s.cache.PutAsync(substituted, language, p.Voice.Name, wav)
	}
	return wav, nil
}
