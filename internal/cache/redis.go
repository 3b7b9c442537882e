package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"newspulse/internal/model"
)

const DefaultTTL = 24 * time.Hour

const keyPrefix = "newspulse:enrichment"

// CompleteLookup is the durable read path the cache sits in front of.
type CompleteLookup interface {
	LookupComplete(ctx context.Context, articleIDs []int64, kind string) (map[int64]model.EnrichmentResult, error)
}

// RedisCache serves complete results from Redis and falls back to the
// store for misses. Redis failures are logged and bypassed.
type RedisCache struct {
	rdb   *redis.Client
	store CompleteLookup
	ttl   time.Duration
}

func NewRedisCache(rdb *redis.Client, store CompleteLookup, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, store: store, ttl: ttl}
}

func key(kind string, articleID int64) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, kind, articleID)
}

func (c *RedisCache) LookupComplete(ctx context.Context, articleIDs []int64, kind string) (map[int64]model.EnrichmentResult, error) {
	found := make(map[int64]model.EnrichmentResult, len(articleIDs))
	if len(articleIDs) == 0 {
		return found, nil
	}

	misses := articleIDs
	if c.rdb != nil {
		misses = c.fromRedis(ctx, articleIDs, kind, found)
	}

	if len(misses) == 0 {
		return found, nil
	}

	stored, err := c.store.LookupComplete(ctx, misses, kind)
	if err != nil {
		return nil, err
	}

	for id, result := range stored {
		found[id] = result
		c.backfill(ctx, result)
	}

	return found, nil
}

func (c *RedisCache) fromRedis(ctx context.Context, articleIDs []int64, kind string, found map[int64]model.EnrichmentResult) []int64 {
	keys := make([]string, len(articleIDs))
	for i, id := range articleIDs {
		keys[i] = key(kind, id)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("redis lookup failed, reading store", "kind", kind, "error", err)
		return articleIDs
	}

	var misses []int64
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, articleIDs[i])
			continue
		}

		var result model.EnrichmentResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil || result.Status != model.StatusComplete {
			misses = append(misses, articleIDs[i])
			continue
		}
		found[articleIDs[i]] = result
	}

	return misses
}

// Remember stores a complete result, replacing whatever was cached for the
// same article and kind. Other statuses are ignored.
func (c *RedisCache) Remember(ctx context.Context, result model.EnrichmentResult) {
	c.write(ctx, result, false)
}

// backfill caches a result read from the store only if the key is still
// empty, so a newer result remembered meanwhile is kept.
func (c *RedisCache) backfill(ctx context.Context, result model.EnrichmentResult) {
	c.write(ctx, result, true)
}

func (c *RedisCache) write(ctx context.Context, result model.EnrichmentResult, onlyIfAbsent bool) {
	if c.rdb == nil || result.Status != model.StatusComplete {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}

	k := key(result.Kind, result.ArticleID)
	if onlyIfAbsent {
		err = c.rdb.SetNX(ctx, k, raw, c.ttl).Err()
	} else {
		err = c.rdb.Set(ctx, k, raw, c.ttl).Err()
	}
	if err != nil {
		slog.Warn("redis write failed",
			"article_id", result.ArticleID,
			"kind", result.Kind,
			"error", err,
		)
	}
}
