package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Cache policy defaults, matching the URL-text cache.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultEarlyRefresh = 3 * time.Minute
)

type cachedRecord struct {
	configs    []Config
	fetchedAt  time.Time
	refreshing bool
}

// Cache serves tenant configs from memory, loading whole tenant records
// through a [Store]. The full record is cached; the requested config id is
// looked up within it, so all configs of a tenant share one DynamoDB read.
type Cache struct {
	store        Store
	ttl          time.Duration
	earlyRefresh time.Duration

	mu      sync.Mutex
	entries map[string]*cachedRecord
	loading map[string]*sync.Mutex

	now func() time.Time // test seam
}

// CacheOption is a functional option for [NewCache].
type CacheOption func(*Cache)

// WithTTL overrides the cache lifetime and early-refresh window.
func WithTTL(ttl, earlyRefresh time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
		c.earlyRefresh = earlyRefresh
	}
}

// NewCache creates a Cache backed by store with the default policy.
func NewCache(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:        store,
		ttl:          DefaultTTL,
		earlyRefresh: DefaultEarlyRefresh,
		entries:      make(map[string]*cachedRecord),
		loading:      make(map[string]*sync.Mutex),
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the tenant's configuration for configID. An empty configID
// selects the first config in the record.
func (c *Cache) Config(ctx context.Context, tenantID, configID string) (*Config, error) {
	configs, err := c.record(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("tenant %s: empty config record", tenantID)
	}
	if configID == "" {
		cfg := configs[0]
		return &cfg, nil
	}
	for i := range configs {
		if configs[i].ConfigID == configID {
			cfg := configs[i]
			return &cfg, nil
		}
	}
	return nil, fmt.Errorf("tenant %s config %s: %w", tenantID, configID, ErrConfigNotFound)
}

func (c *Cache) record(ctx context.Context, tenantID string) ([]Config, error) {
	c.mu.Lock()
	e, ok := c.entries[tenantID]
	if ok {
		age := c.now().Sub(e.fetchedAt)
		if age < c.ttl {
			configs := e.configs
			if age >= c.earlyRefresh && !e.refreshing {
				e.refreshing = true
				go c.refresh(tenantID)
			}
			c.mu.Unlock()
			return configs, nil
		}
	}
	lock := c.loadLock(tenantID)
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if e, ok := c.entries[tenantID]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		configs := e.configs
		c.mu.Unlock()
		return configs, nil
	}
	c.mu.Unlock()

	configs, err := c.store.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.storeRecord(tenantID, configs)
	return configs, nil
}

// refresh reloads a tenant record in the background. Failures keep the stale
// record; staleness is bounded by the TTL.
func (c *Cache) refresh(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	configs, err := c.store.Load(ctx, tenantID)
	if err != nil {
		slog.Warn("tenant: background refresh failed", "tenant", tenantID, "error", err)
		c.mu.Lock()
		if e, ok := c.entries[tenantID]; ok {
			e.refreshing = false
		}
		c.mu.Unlock()
		return
	}
	c.storeRecord(tenantID, configs)
}

func (c *Cache) storeRecord(tenantID string, configs []Config) {
	c.mu.Lock()
	c.entries[tenantID] = &cachedRecord{configs: configs, fetchedAt: c.now()}
	c.mu.Unlock()
}

// loadLock returns the per-tenant load mutex. Caller must hold c.mu.
func (c *Cache) loadLock(tenantID string) *sync.Mutex {
	if l, ok := c.loading[tenantID]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.loading[tenantID] = l
	return l
}
