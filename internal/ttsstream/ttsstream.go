// Package ttsstream turns streamed answer text into ordered speech events.
//
// Generator output arrives in arbitrary fragments; phrases are delimited by
// <break/> markers inserted by the answer prompt. The streamer accumulates
// fragments, synthesizes each completed phrase, and publishes tts_audio
// events carrying base64 WAV audio with a monotonically increasing chunk
// order so the client can play phrases in sequence.
package ttsstream

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"

	"github.com/vocanta/vocanta/internal/bus"
	"github.com/vocanta/vocanta/pkg/provider/tts"
)

// PhraseBreak delimits speakable phrases in generator output.
const PhraseBreak = "<break/>"

// Config binds a Streamer to one session's voice.
type Config struct {
	Voice            tts.Voice
	GlobalPhonemeURL string
	LexiconURL       string

	// Trim enables silence trimming on synthesized phrases.
	Trim bool
}

// Streamer synthesizes phrase-delimited text and publishes the audio.
type Streamer struct {
	synth *tts.Synthesizer
	bus   *bus.Bus
	cfg   Config

	mu    sync.Mutex
	buf   string
	order int
}

// New creates a Streamer publishing to b.
func New(synth *tts.Synthesizer, b *bus.Bus, cfg Config) *Streamer {
	return &Streamer{synth: synth, bus: b, cfg: cfg}
}

// Feed appends a text fragment and speaks every phrase completed by it. A
// fragment may complete zero, one, or several phrases; the trailing residue
// stays buffered until the next fragment or [Flush].
func (s *Streamer) Feed(ctx context.Context, fragment string) {
	s.mu.Lock()
	s.buf += fragment
	var phrases []string
	for {
		i := strings.Index(s.buf, PhraseBreak)
		if i < 0 {
			break
		}
		phrases = append(phrases, s.buf[:i])
		s.buf = s.buf[i+len(PhraseBreak):]
	}
	s.mu.Unlock()

	for _, phrase := range phrases {
		s.speak(ctx, phrase)
	}
}

// Flush speaks whatever remains in the buffer. Call once after the generator
// stream ends; the final phrase usually has no trailing break marker.
func (s *Streamer) Flush(ctx context.Context) {
	s.mu.Lock()
	rest := s.buf
	s.buf = ""
	s.mu.Unlock()
	s.speak(ctx, rest)
}

// Say speaks text immediately, bypassing the phrase buffer. Used for
// standalone utterances such as processing prompts; break markers are spoken
// as pauses, not phrase splits, so they are dropped.
func (s *Streamer) Say(ctx context.Context, text string) {
	s.speak(ctx, strings.ReplaceAll(text, PhraseBreak, " "))
}

// speak synthesizes one phrase and publishes it. Synthesis failures are
// logged and skipped: a lost phrase must not abort the answer stream, the
// text has already been delivered as answer_chunk events.
func (s *Streamer) speak(ctx context.Context, phrase string) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return
	}
	wav, err := s.synth.Synthesize(ctx, tts.Params{
		Text:             phrase,
		Voice:            s.cfg.Voice,
		GlobalPhonemeURL: s.cfg.GlobalPhonemeURL,
		LexiconURL:       s.cfg.LexiconURL,
		Trim:             s.cfg.Trim,
	})
	if err != nil {
		slog.Warn("ttsstream: phrase synthesis failed", "error", err)
		return
	}

	s.mu.Lock()
	order := s.order
	s.order++
	s.mu.Unlock()

	s.bus.Send(bus.EventTTSAudio, map[string]any{
		"text":         phrase,
		"language":     s.cfg.Voice.Language,
		"chunk_order":  order,
		"audio_data":   base64.StdEncoding.EncodeToString(wav),
		"audio_size":   len(wav),
		"audio_format": "wav",
	})
}
