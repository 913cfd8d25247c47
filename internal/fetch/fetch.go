// Package fetch provides a process-wide cached HTTP text fetcher for prompt
// templates, lexicons, and phoneme dictionaries.
//
// Only URLs that look like reusable templates are cached (name contains
// template/prompt/system/affirmation/validator or ends in .txt/.md/.json);
// everything else is fetched directly. Cached entries live for 15 minutes
// with an early-refresh window at 3 minutes: a read inside the window returns
// the cached text immediately and refreshes in the background, keeping the
// request hot path off cold upstream fetches.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Cache policy defaults.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultEarlyRefresh = 3 * time.Minute

	requestTimeout = 30 * time.Second
)

// cachePatterns marks URLs worth caching. Matched case-insensitively against
// the full URL.
var cachePatterns = []string{
	"template", "prompt", "system", "affirmation", "validator",
	".txt", ".md", ".json",
}

type entry struct {
	text       string
	fetchedAt  time.Time
	refreshing bool
}

// Client is a concurrent-safe cached text fetcher. The zero value is not
// usable; create one with [New].
type Client struct {
	httpClient   *http.Client
	ttl          time.Duration
	earlyRefresh time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	loading map[string]*sync.Mutex // per-URL first-load locks

	now func() time.Time // test seam
}

// Option is a functional option for [New].
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTTL overrides the cache lifetime and early-refresh window.
func WithTTL(ttl, earlyRefresh time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
		c.earlyRefresh = earlyRefresh
	}
}

// New creates a Client with the default cache policy.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: requestTimeout},
		ttl:          DefaultTTL,
		earlyRefresh: DefaultEarlyRefresh,
		entries:      make(map[string]*entry),
		loading:      make(map[string]*sync.Mutex),
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Text returns the body of url decoded as UTF-8 text, served from cache when
// the URL matches the cacheable patterns and the entry is fresh.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	if !Cacheable(url) {
		return c.get(ctx, url)
	}

	c.mu.Lock()
	e, ok := c.entries[url]
	if ok {
		age := c.now().Sub(e.fetchedAt)
		if age < c.ttl {
			text := e.text
			if age >= c.earlyRefresh && !e.refreshing {
				e.refreshing = true
				go c.refresh(url)
			}
			c.mu.Unlock()
			return text, nil
		}
	}
	lock := c.loadLock(url)
	c.mu.Unlock()

	// Serialize cold loads per URL so concurrent first reads do not
	// duplicate upstream fetches.
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if e, ok := c.entries[url]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		text := e.text
		c.mu.Unlock()
		return text, nil
	}
	c.mu.Unlock()

	text, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	c.store(url, text)
	return text, nil
}

// refresh re-fetches url in the background. Failures keep the stale entry;
// staleness is bounded by the TTL.
func (c *Client) refresh(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	text, err := c.get(ctx, url)
	if err != nil {
		slog.Warn("fetch: background refresh failed", "url", url, "error", err)
		c.mu.Lock()
		if e, ok := c.entries[url]; ok {
			e.refreshing = false
		}
		c.mu.Unlock()
		return
	}
	c.store(url, text)
}

func (c *Client) store(url, text string) {
	c.mu.Lock()
	c.entries[url] = &entry{text: text, fetchedAt: c.now()}
	c.mu.Unlock()
}

// loadLock returns the per-URL load mutex. Caller must hold c.mu.
func (c *Client) loadLock(url string) *sync.Mutex {
	if l, ok := c.loading[url]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.loading[url] = l
	return l
}

// get performs one HTTP GET and returns the body as UTF-8 text.
func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: get %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: read %s: %w", url, err)
	}
	return string(body), nil
}

// Cacheable reports whether url matches the template-like patterns that are
// worth caching.
func Cacheable(url string) bool {
	lower := strings.ToLower(url)
	for _, p := range cachePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
