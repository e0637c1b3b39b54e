package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache resolves a FieldAnswer for key (rawPayloadHash, field) without
// calling the provider again, per spec §4.4's cache-key contract.
type Cache interface {
	Get(ctx context.Context, rawPayloadHash, field string) (FieldAnswer, bool)
	Set(ctx context.Context, rawPayloadHash, field string, answer FieldAnswer, ttl time.Duration)
}

func cacheKey(rawPayloadHash, field string) string { return rawPayloadHash + ":" + field }

// MemoryCache is an in-process TTL cache with LRU eviction, grounded on
// the teacher's data/cache/ttl.go TTLCache: same expiry-on-read-and-
// background-sweep shape and maxEntries eviction, narrowed to this
// package's one value type (FieldAnswer) instead of the teacher's generic
// any-typed entry, and with the teacher's crypto-domain Stats() tiers
// (PricesHot/PricesWarm/...) dropped since they have no equivalent here.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	stopCh     chan struct{}
}

type memoryEntry struct {
	answer   FieldAnswer
	expires  time.Time
	accessed time.Time
}

// NewMemoryCache builds an in-memory cache with a background sweep every
// minute; maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	c := &MemoryCache{entries: make(map[string]memoryEntry), maxEntries: maxEntries, stopCh: make(chan struct{})}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) Get(ctx context.Context, rawPayloadHash, field string) (FieldAnswer, bool) {
	key := cacheKey(rawPayloadHash, field)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, key)
		return FieldAnswer{}, false
	}
	e.accessed = time.Now()
	c.entries[key] = e
	return e.answer, true
}

func (c *MemoryCache) Set(ctx context.Context, rawPayloadHash, field string, answer FieldAnswer, ttl time.Duration) {
	key := cacheKey(rawPayloadHash, field)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}
	now := time.Now()
	c.entries[key] = memoryEntry{answer: answer, expires: now.Add(ttl), accessed: now}
}

func (c *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestAccess time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.accessed.Before(oldestAccess) {
			oldestKey, oldestAccess = k, e.accessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache) Stop() { close(c.stopCh) }

// RedisCache backs the same Cache interface with go-redis/v9, for
// deployments that run the scraper as multiple worker processes sharing
// one cache.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache { return &RedisCache{client: client} }

func (c *RedisCache) Get(ctx context.Context, rawPayloadHash, field string) (FieldAnswer, bool) {
	data, err := c.client.Get(ctx, cacheKey(rawPayloadHash, field)).Bytes()
	if err != nil {
		return FieldAnswer{}, false
	}
	var answer FieldAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return FieldAnswer{}, false
	}
	return answer, true
}

func (c *RedisCache) Set(ctx context.Context, rawPayloadHash, field string, answer FieldAnswer, ttl time.Duration) {
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(rawPayloadHash, field), data, ttl)
}
