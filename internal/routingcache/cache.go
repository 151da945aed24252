// Package routingcache is a Redis-backed cache of routing results, keyed by
// a stable hash of the routing input, grounded on the teacher's
// pkg/external.CacheClient pattern: a redis.Client wrapper storing a
// JSON-encoded, timestamped envelope. Expiry is left to Redis's own TTL;
// on read only the envelope's catalog version is checked.
package routingcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Cache wraps a Redis client with routing-result caching.
type Cache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// New builds a Cache from cache configuration, the way the teacher's
// NewCacheClient parses a Redis URL and tunes pool size / retries.
func New(cfg domain.CacheConfig) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("routingcache: parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("routingcache: connecting to redis: %w", err)
	}

	return &Cache{redis: client, defaultTTL: cfg.DefaultTTL}, nil
}

// entry is the on-wire cache envelope.
type entry struct {
	Result     domain.RoutingResult `json:"result"`
	CatalogVer string                `json:"catalog_version"`
	CachedAt   time.Time             `json:"cached_at"`
}

// Get looks up a routing result by input hash. A cached entry whose catalog
// version no longer matches the active snapshot is treated as a miss:
// routing results are only valid for the catalog version they were computed
// against, per the reload-invalidates-cache rule.
func (c *Cache) Get(ctx context.Context, inputHash, catalogVersion string) (domain.RoutingResult, bool, error) {
	val, err := c.redis.Get(ctx, key(inputHash)).Result()
	if err == redis.Nil {
		return domain.RoutingResult{}, false, nil
	}
	if err != nil {
		return domain.RoutingResult{}, false, fmt.Errorf("routingcache: get: %w", err)
	}

	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		c.redis.Del(ctx, key(inputHash))
		return domain.RoutingResult{}, false, nil
	}
	if e.CatalogVer != catalogVersion {
		c.redis.Del(ctx, key(inputHash))
		return domain.RoutingResult{}, false, nil
	}

	return e.Result, true, nil
}

// Set stores a routing result under its input hash, tagged with the catalog
// version it was computed against.
func (c *Cache) Set(ctx context.Context, inputHash, catalogVersion string, result domain.RoutingResult) error {
	e := entry{Result: result, CatalogVer: catalogVersion, CachedAt: time.Now().UTC()}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("routingcache: marshal: %w", err)
	}
	return c.redis.Set(ctx, key(inputHash), raw, c.defaultTTL).Err()
}

// InvalidateAll flushes every cached routing result. Called after a catalog
// reload swaps in a new version, since every previously cached result was
// computed against the now-stale snapshot.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, "routing:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("routingcache: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.redis.Close()
}

// InputHash computes the stable cache key for a routing input: the set of
// governance-valid SKU ids, the translated constraints' own output hash,
// and the set of requirements. Two requests that land on the same
// valid-SKU set, translated constraints and requirements always produce
// the same routing result.
func InputHash(validSkuIDs []string, constraintsOutputHash string, requirements []string) string {
	return domain.StableHash(map[string]interface{}{
		"valid_skus":   domain.SortedSet(validSkuIDs),
		"output_hash":  constraintsOutputHash,
		"requirements": domain.SortedSet(requirements),
	})
}

func key(inputHash string) string {
	return "routing:" + inputHash
}
