package ssml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// TextFetcher retrieves a remote document as text. Satisfied by the cached
// URL fetcher.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Sources names the phoneme dictionaries for one voice.
type Sources struct {
	// GlobalURL is the tenant-wide dictionary applied to every language.
	GlobalURL string

	// VoiceURL is the per-voice dictionary; its entries override the global
	// ones for the same term.
	VoiceURL string

	// Language scopes the compiled ruleset. The reserved value "default"
	// uses the global dictionary only.
	Language string
}

// DefaultLanguage selects the global dictionary with no voice overlay.
const DefaultLanguage = "default"

// PatternCache compiles and caches phoneme rulesets per dictionary-source
// combination. Compiling the whole-word regexes is the expensive part, so a
// ruleset is built once per distinct source set and reused across requests.
type PatternCache struct {
	fetcher TextFetcher

	mu      sync.Mutex
	entries map[string]*Ruleset
	loading map[string]*sync.Mutex
}

// NewPatternCache creates a PatternCache loading dictionaries via fetcher.
func NewPatternCache(fetcher TextFetcher) *PatternCache {
	return &PatternCache{
		fetcher: fetcher,
		entries: make(map[string]*Ruleset),
		loading: make(map[string]*sync.Mutex),
	}
}

// Rules returns the compiled ruleset for src, loading and compiling it on
// first use. Dictionary fetch or parse failures are logged and skipped, so a
// broken dictionary degrades to fewer substitutions instead of failing
// synthesis.
func (c *PatternCache) Rules(ctx context.Context, src Sources) *Ruleset {
	key := src.cacheKey()

	c.mu.Lock()
	if rs, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rs
	}
	lock := c.loadLock(key)
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if rs, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rs
	}
	c.mu.Unlock()

	rs := c.load(ctx, src)
	c.mu.Lock()
	c.entries[key] = rs
	c.mu.Unlock()
	return rs
}

func (c *PatternCache) load(ctx context.Context, src Sources) *Ruleset {
	var replacements []Replacement
	replacements = append(replacements, c.loadDictionary(ctx, src.GlobalURL)...)
	if src.Language != DefaultLanguage {
		// Voice entries come last so Compile lets them override.
		replacements = append(replacements, c.loadDictionary(ctx, src.VoiceURL)...)
	}
	return Compile(replacements)
}

func (c *PatternCache) loadDictionary(ctx context.Context, url string) []Replacement {
	if url == "" {
		return nil
	}
	text, err := c.fetcher.Text(ctx, url)
	if err != nil {
		slog.Warn("ssml: phoneme dictionary fetch failed", "url", url, "error", err)
		return nil
	}
	replacements, err := ParseDictionary([]byte(text))
	if err != nil {
		slog.Warn("ssml: phoneme dictionary parse failed", "url", url, "error", err)
		return nil
	}
	return replacements
}

// cacheKey derives a stable id from the sorted source descriptors.
func (s Sources) cacheKey() string {
	parts := []string{
		"global:" + s.GlobalURL,
		"voice:" + s.Language + ":" + s.VoiceURL,
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// loadLock returns the per-key load mutex. Caller must hold c.mu.
func (c *PatternCache) loadLock(key string) *sync.Mutex {
	if l, ok := c.loading[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.loading[key] = l
	return l
}
