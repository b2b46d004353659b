package syncclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/clock"
	"github.com/redis/go-redis/v9"
)

// Link is a resolved download link for one stored file. Error is set when
// the link could not be signed; URL is empty then.
type Link struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// LinkCache stores signed links per quote for less than the links' lifetime.
type LinkCache interface {
	Get(ctx context.Context, quoteID string) ([]Link, bool)
	Set(ctx context.Context, quoteID string, links []Link)
	Invalidate(ctx context.Context, quoteID string)
}

// MemoryLinkCache is a process-local LinkCache.
type MemoryLinkCache struct {
	mu    sync.RWMutex
	items map[string]linkEntry
	ttl   time.Duration
	clock clock.Clock
}

type linkEntry struct {
	links     []Link
	expiresAt time.Time
}

func NewMemoryLinkCache(ttl time.Duration, clk clock.Clock) *MemoryLinkCache {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryLinkCache{items: make(map[string]linkEntry), ttl: ttl, clock: clk}
}

func (c *MemoryLinkCache) Get(_ context.Context, quoteID string) ([]Link, bool) {
	c.mu.RLock()
	entry, ok := c.items[quoteID]
	c.mu.RUnlock()

	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return nil, false
	}
	return append([]Link(nil), entry.links...), true
}

func (c *MemoryLinkCache) Set(_ context.Context, quoteID string, links []Link) {
	c.mu.Lock()
	c.items[quoteID] = linkEntry{
		links:     append([]Link(nil), links...),
		expiresAt: c.clock.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *MemoryLinkCache) Invalidate(_ context.Context, quoteID string) {
	c.mu.Lock()
	delete(c.items, quoteID)
	c.mu.Unlock()
}

// RedisLinkCache shares signed links between service replicas. Redis errors
// degrade to cache misses.
type RedisLinkCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLinkCache(rdb *redis.Client, ttl time.Duration) *RedisLinkCache {
	return &RedisLinkCache{rdb: rdb, ttl: ttl, prefix: "rfq:links:"}
}

func (c *RedisLinkCache) Get(ctx context.Context, quoteID string) ([]Link, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+quoteID).Bytes()
	if err != nil {
		return nil, false
	}
	var links []Link
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, false
	}
	return links, true
}

func (c *RedisLinkCache) Set(ctx context.Context, quoteID string, links []Link) {
	raw, err := json.Marshal(links)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.prefix+quoteID, raw, c.ttl)
}

func (c *RedisLinkCache) Invalidate(ctx context.Context, quoteID string) {
	c.rdb.Del(ctx, c.prefix+quoteID)
}
