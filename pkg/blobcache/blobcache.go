// Package blobcache caches synthesized TTS audio in an object store.
//
// Keys follow the layout <language>/<safe_voice_name>/<16-hex-hash>.wav where
// the hash covers the phoneme-substituted text, language, and voice name.
// Reads are guarded by a short timeout and degrade to a miss; writes are
// fire-and-forget so synthesis latency never waits on the store.
package blobcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// ErrNotFound is returned by [Store.Get] when the key does not exist.
var ErrNotFound = errors.New("blobcache: key not found")

// readTimeout bounds cache reads; a slow store must not stall synthesis.
const readTimeout = 3 * time.Second

// Store is the minimal object-store surface the cache needs.
type Store interface {
	// Get returns the object at key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data at key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte) error
}

// unsafeVoiceChars matches every character that may not appear in a blob path
// segment derived from a voice name.
var unsafeVoiceChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// Key computes the blob key for a synthesized phrase.
func Key(phonemeText, language, voiceName string) string {
	sum := sha256.Sum256([]byte(phonemeText + "|" + language + "|" + voiceName))
	hash := hex.EncodeToString(sum[:])[:16]
	safeVoice := unsafeVoiceChars.ReplaceAllString(voiceName, "_")
	return fmt.Sprintf("%s/%s/%s.wav", language, safeVoice, hash)
}

// Cache wraps a Store with the audio-cache read/write policy.
type Cache struct {
	store Store
}

// New creates a Cache backed by store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Get looks up cached audio for a phrase. Misses, errors, and reads slower
// than the read timeout all return (nil, false); the caller re-synthesizes.
func (c *Cache) Get(ctx context.Context, phonemeText, language, voiceName string) ([]byte, bool) {
	key := Key(phonemeText, language, voiceName)

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("blobcache: read failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// PutAsync stores audio for a phrase in the background. Errors are logged
// and dropped; a failed write only costs a future cache miss.
func (c *Cache) PutAsync(phonemeText, language, voiceName string, data []byte) {
	key := Key(phonemeText, language, voiceName)
	buf := make([]byte, len(data))
	copy(buf, data)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.store.Put(ctx, key, buf); err != nil {
			slog.Warn("blobcache: async write failed", "key", key, "error", err)
		}
	}()
}
