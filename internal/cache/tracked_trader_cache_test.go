package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type fakeSource struct {
	calls  int
	scores []model.TruthScore
}

func (f *fakeSource) TopTraders(_ context.Context, _ platform.Platform, _ int) ([]model.TruthScore, error) {
	f.calls++
	return f.scores, nil
}

// fakeRedis is an in-process stand-in for the narrowed redisClient
// interface, letting the cache-aside logic be exercised without a live
// Redis server.
type fakeRedis struct {
	store map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{store: make(map[string]string)} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	val, ok := f.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	switch v := value.(type) {
	case []byte:
		f.store[key] = string(v)
	case string:
		f.store[key] = v
	default:
		data, _ := json.Marshal(v)
		f.store[key] = string(data)
	}
	cmd.SetVal("OK")
	return cmd
}

// TestTopTraders_CachesAcrossCalls exercises the cache-aside property the
// aggregator's 60s refresh cadence relies on: a second call within TTL
// never reaches the wrapped store.
func TestTopTraders_CachesAcrossCalls(t *testing.T) {
	source := &fakeSource{scores: []model.TruthScore{{Trader: "0xa", Tier: model.TierDiamond}}}
	c := &TrackedTraderCache{client: newFakeRedis(), source: source, ttl: DefaultTTL}

	first, err := c.TopTraders(context.Background(), "polymarket", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	second, err := c.TopTraders(context.Background(), "polymarket", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second call within TTL should be served from cache")
	assert.Equal(t, first, second)
}

func TestTopTraders_NilClientFallsThroughToSource(t *testing.T) {
	source := &fakeSource{scores: []model.TruthScore{{Trader: "0xa"}}}
	c := NewTrackedTraderCache(nil, source)

	_, err := c.TopTraders(context.Background(), "polymarket", 50)
	require.NoError(t, err)
	_, err = c.TopTraders(context.Background(), "polymarket", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "nil client must not cache")
}
