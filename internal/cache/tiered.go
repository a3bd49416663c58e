// Package cache implements the three-tier read-through cache of spec §4.5:
// an in-process LRU, a shared Redis tier, and the authoritative relational
// store behind it. Tiered here covers the first two; internal/store is the
// third and authoritative tier.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	redis "github.com/redis/go-redis/v9"
)

// Tiered is a read-through cache: Get checks the in-process LRU, then
// Redis, backfilling the LRU on a Redis hit. Set writes Redis first (the
// durable shared tier) then the LRU, matching the write-through order spec
// §4.5 requires ("writers update the authoritative store first, then
// best-effort write-through to shared and in-process tiers" — here
// generalized one level: Redis before the in-process tier). Adapted from
// the teacher's internal/skills.RedisSkillsCache, generalized from a single
// rendered-prompt cache to an arbitrary byte-value cache with a tracked key
// set so prefix invalidation can reach the in-process tier too, which
// groupcache's lru.Cache does not support natively.
type Tiered struct {
	mu    sync.Mutex
	local *lru.Cache
	keys  map[string]struct{}
	redis redis.UniversalClient
}

// New builds a Tiered cache. capacityEntries bounds the in-process LRU by
// entry count (spec's `cache.lru.capacity_entries`); a byte-capacity bound
// is not implemented, matching the teacher's own skills/token caches, which
// bound by entry count only.
func New(capacityEntries int, redisClient redis.UniversalClient) *Tiered {
	if capacityEntries <= 0 {
		capacityEntries = 10000
	}
	return &Tiered{
		local: lru.New(capacityEntries),
		keys:  make(map[string]struct{}),
		redis: redisClient,
	}
}

// Get returns the cached value and true on a hit in either tier, or
// (nil, false) on a miss in both.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	t.mu.Lock()
	if v, ok := t.local.Get(key); ok {
		t.mu.Unlock()
		return v.([]byte), true
	}
	t.mu.Unlock()

	if t.redis == nil {
		return nil, false
	}
	val, err := t.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	t.mu.Lock()
	t.local.Add(key, val)
	t.keys[key] = struct{}{}
	t.mu.Unlock()
	return val, true
}

// Set writes value to both tiers with the given shared-tier TTL. A TTL of
// zero means the shared entry never expires on its own (embeddings,
// effectively permanent per spec §4.5, until invalidated by content or
// version change).
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if t.redis != nil {
		if err := t.redis.Set(ctx, key, value, ttl).Err(); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.local.Add(key, value)
	t.keys[key] = struct{}{}
	t.mu.Unlock()
	return nil
}

// Invalidate removes key from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, key string) error {
	t.mu.Lock()
	t.local.Remove(key)
	delete(t.keys, key)
	t.mu.Unlock()
	if t.redis == nil {
		return nil
	}
	return t.redis.Del(ctx, key).Err()
}

// InvalidateSuffix removes every key starting with prefix and ending with
// suffix from both tiers — used to scope a sweep to one analysis version
// within a domain without a full prefix wipe across all versions.
func (t *Tiered) InvalidateSuffix(ctx context.Context, prefix, suffix string) error {
	t.mu.Lock()
	for k := range t.keys {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, suffix) {
			t.local.Remove(k)
			delete(t.keys, k)
		}
	}
	t.mu.Unlock()

	if t.redis == nil {
		return nil
	}
	iter := t.redis.Scan(ctx, 0, prefix+"*"+suffix, 200).Iterator()
	var firstErr error
	for iter.Next(ctx) {
		if err := t.redis.Del(ctx, iter.Val()).Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := iter.Err(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// InvalidatePrefix removes every key starting with prefix from both tiers.
// The in-process tier is bounded by the keys this process itself has
// populated (tracked in t.keys); the Redis tier is swept with Scan, the
// same pattern-based bulk deletion the teacher's RedisSkillsCache.Invalidate
// uses.
func (t *Tiered) InvalidatePrefix(ctx context.Context, prefix string) error {
	t.mu.Lock()
	for k := range t.keys {
		if strings.HasPrefix(k, prefix) {
			t.local.Remove(k)
			delete(t.keys, k)
		}
	}
	t.mu.Unlock()

	if t.redis == nil {
		return nil
	}
	iter := t.redis.Scan(ctx, 0, prefix+"*", 200).Iterator()
	var firstErr error
	for iter.Next(ctx) {
		if err := t.redis.Del(ctx, iter.Val()).Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := iter.Err(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
