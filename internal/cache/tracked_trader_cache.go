// Package cache provides a Redis cache-aside decorator over the
// leaderboard store, serving the tracked-trader set the smart-money
// aggregator refreshes every cycle.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// DefaultTTL bounds how long a platform's top-trader snapshot is served
// from Redis before falling back to Postgres, kept well under the
// aggregator's own 60s refresh cadence so a cold cache never serves a
// multi-cycle-stale set.
const DefaultTTL = 30 * time.Second

// NewClient constructs a go-redis client and verifies connectivity with a
// bounded Ping, failing fast at construction rather than on first use.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis connection failed: %w", err)
	}
	return rdb, nil
}

// LeaderboardSource is the authoritative lookup this cache sits in front
// of, satisfied by store.LeaderboardRepo's TopTraders method and by
// smartmoney.ScoreLookup, the consumer this decorator is built to satisfy.
type LeaderboardSource interface {
	TopTraders(ctx context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error)
}

// redisClient is the subset of *redis.Client this cache needs, narrowed to
// an interface so tests can substitute a fake without a live Redis server.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// TrackedTraderCache is a cache-aside decorator: a hit within DefaultTTL
// serves straight from Redis, a miss falls through to the wrapped source and
// populates the key for the next refresh cycle. It implements
// smartmoney.ScoreLookup, so it can be wired in place of the raw store
// leaderboard with no change to the aggregator.
type TrackedTraderCache struct {
	client redisClient
	source LeaderboardSource
	ttl    time.Duration
}

// NewTrackedTraderCache wraps source with a Redis-backed cache-aside
// layer. A nil client degrades to calling source directly, used when Redis
// is not configured.
func NewTrackedTraderCache(client *redis.Client, source LeaderboardSource) *TrackedTraderCache {
	if client == nil {
		return &TrackedTraderCache{source: source, ttl: DefaultTTL}
	}
	return &TrackedTraderCache{client: client, source: source, ttl: DefaultTTL}
}

func cacheKey(platformID platform.Platform, n int) string {
	return fmt.Sprintf("truthfeed:tracked:%s:%d", platformID, n)
}

// TopTraders returns the top n traders for platformID, preferring a
// not-yet-expired Redis snapshot over a fresh store query.
func (c *TrackedTraderCache) TopTraders(ctx context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error) {
	if c.client == nil {
		return c.source.TopTraders(ctx, platformID, n)
	}

	key := cacheKey(platformID, n)
	if cached, ok, err := c.get(ctx, key); err == nil && ok {
		return cached, nil
	}

	scores, err := c.source.TopTraders(ctx, platformID, n)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, scores)
	return scores, nil
}

func (c *TrackedTraderCache) get(ctx context.Context, key string) ([]model.TruthScore, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var scores []model.TruthScore
	if err := json.Unmarshal([]byte(val), &scores); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal tracked traders: %w", err)
	}
	return scores, true, nil
}

// set best-efforts the write: a failed Set only costs a cache-miss on the
// next refresh, never a correctness problem, so the error is swallowed here
// the same way the aggregator already swallows per-platform refresh errors.
func (c *TrackedTraderCache) set(ctx context.Context, key string, scores []model.TruthScore) {
	data, err := json.Marshal(scores)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}
