package fetch

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache stores raw response payloads. Implementations must be safe for
// concurrent use and must hand out copies.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// Invalidate drops every entry whose key starts with prefix and reports
	// how many were dropped (best effort for shared stores).
	Invalidate(ctx context.Context, prefix string) int
}

type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is the process-local response cache. Expired entries are
// removed on the lookup that finds them.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: map[string]cacheEntry{}, now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return clone(e.payload), true
}

func (c *MemoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: clone(payload), expiresAt: c.now().Add(ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Invalidate(_ context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len counts live and not-yet-collected entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TieredCache consults a local cache before a shared one and backfills the
// local tier on shared hits.
type TieredCache struct {
	Local    Cache
	Shared   Cache
	LocalTTL time.Duration
}

func (t TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if b, ok := t.Local.Get(ctx, key); ok {
		return b, true
	}
	b, ok := t.Shared.Get(ctx, key)
	if ok {
		t.Local.Set(ctx, key, b, t.LocalTTL)
	}
	return b, ok
}

func (t TieredCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	localTTL := t.LocalTTL
	if localTTL <= 0 || localTTL > ttl {
		localTTL = ttl
	}
	t.Local.Set(ctx, key, payload, localTTL)
	t.Shared.Set(ctx, key, payload, ttl)
}

func (t TieredCache) Delete(ctx context.Context, key string) {
	t.Local.Delete(ctx, key)
	t.Shared.Delete(ctx, key)
}

func (t TieredCache) Invalidate(ctx context.Context, prefix string) int {
	return t.Local.Invalidate(ctx, prefix) + t.Shared.Invalidate(ctx, prefix)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
