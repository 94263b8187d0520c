package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshctl/meshcore/pkg/logging"
)

// DefaultTTL is the response cache lifetime used when no override is
// configured (§4.6).
const DefaultTTL = 30 * time.Second

const cacheKeyPrefix = "meshcore:query:"

// ResponseCache fronts read endpoints with a short-lived cache keyed by
// endpoint name and filter parameters. Any registry write invalidates the
// entire cache rather than tracking per-key dependencies, trading a few
// extra misses after a write for a trivially correct invalidation rule.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache wraps an existing redis client. Pass a client pointed at
// a real redis instance in production, or one backed by miniredis in tests.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{client: client, ttl: ttl}
}

// Key builds a stable cache key for an endpoint and its filter parameters.
// Filters are serialized with sorted keys so equivalent filter maps always
// hash identically regardless of caller-side map iteration order.
func Key(endpoint string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, filters[k]})
	}
	payload, _ := json.Marshal(ordered)

	sum := sha256.Sum256(append([]byte(endpoint+"|"), payload...))
	return cacheKeyPrefix + endpoint + ":" + hex.EncodeToString(sum[:])[:32]
}

// Get looks up a previously cached response, unmarshalling it into dst.
// It reports whether a cache hit occurred; any redis error is treated as a
// miss so a transient cache outage never breaks a read.
func (c *ResponseCache) Get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logging.Warn("query", "discarding corrupt cache entry %s: %s", key, err)
		return false
	}
	return true
}

// Set stores a response under key with the cache's configured TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logging.Warn("query", "failed to marshal cache value for %s: %s", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logging.Warn("query", "failed to populate response cache for %s: %s", key, err)
	}
}

// InvalidateAll drops every cached response. Called after any successful
// registry write (register, unregister, heartbeat, health transition) so
// stale reads can never outlive the mutation that made them stale.
func (c *ResponseCache) InvalidateAll(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logging.Warn("query", "cache scan failed during invalidation: %s", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logging.Warn("query", "cache invalidation failed: %s", err)
	}
}
