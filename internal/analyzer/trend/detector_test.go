package trend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type fakeSource struct {
	byPlatform map[platform.Platform][]model.Market
}

func (f *fakeSource) GetActiveMarkets(_ context.Context, p platform.Platform, _ int) ([]model.Market, error) {
	return f.byPlatform[p], nil
}

type fakeTopicStore struct{ upserted []model.TrendingTopic }

func (f *fakeTopicStore) UpsertTopic(_ context.Context, t model.TrendingTopic) error {
	f.upserted = append(f.upserted, t)
	return nil
}

func market(id string, p platform.Platform, title string, volume float64) model.Market {
	return model.Market{ID: id, Platform: p, Title: title, BullAmount: model.FromFloat(volume / 2), BearAmount: model.FromFloat(volume / 2)}
}

func TestRunOnce_ClustersAcrossPlatforms(t *testing.T) {
	src := &fakeSource{byPlatform: map[platform.Platform][]model.Market{
		"polymarket": {market("pm-1", "polymarket", "Will Trump win the election?", 60_000)},
		"kalshi":     {market("k-1", "kalshi", "Trump 2028 nomination odds", 40_000)},
	}}
	store := &fakeTopicStore{}
	d := New(bus.New(), src, store)

	topics := d.RunOnce(context.Background())

	var found bool
	for _, tp := range topics {
		if tp.NormalizedTopic == "trump" {
			found = true
			assert.Equal(t, 2, tp.TotalMarkets)
			assert.True(t, tp.Consistent())
		}
	}
	assert.True(t, found, "expected a 'trump' cluster")
	assert.NotEmpty(t, store.upserted)
}

func TestRunOnce_DropsBelowThresholds(t *testing.T) {
	src := &fakeSource{byPlatform: map[platform.Platform][]model.Market{
		"polymarket": {market("pm-1", "polymarket", "Obscure single topic market", 1)},
	}}
	d := New(bus.New(), src, nil)

	topics := d.RunOnce(context.Background())
	for _, tp := range topics {
		assert.NotEqual(t, "obscure", tp.NormalizedTopic)
	}
}

func TestCandidateTopics_AliasAndStopwords(t *testing.T) {
	topics := candidateTopics(`Will "Bitcoin" close above $100k before the end of the year?`)
	require.Contains(t, topics, "bitcoin")
	assert.NotContains(t, topics, "the")
	assert.NotContains(t, topics, "end")
}

func TestNormalizeToken_AliasesAndPlurals(t *testing.T) {
	assert.Equal(t, "bitcoin", normalizeToken("BTC"))
	assert.Equal(t, "bitcoin", normalizeToken("bitcoins"))
	assert.Equal(t, "election", normalizeToken("Presidency"))
	assert.Equal(t, "trump", normalizeToken("POTUS"), "s-final alias keys must resolve before the plural strip")
	assert.Equal(t, "election", normalizeToken("pres"))
	assert.Equal(t, "", normalizeToken("42"))
	assert.Equal(t, "", normalizeToken("ok"))
}

func TestScoreCluster_SumsCappedComponents(t *testing.T) {
	score := scoreCluster(100_000, 2, 2, 0)
	assert.InDelta(t, 10+8+10+0, score, 0.01)
}

func TestRunOnce_EmitsUpdatedOnMaterialScoreIncrease(t *testing.T) {
	src := &fakeSource{byPlatform: map[platform.Platform][]model.Market{
		"polymarket": {market("pm-1", "polymarket", `"Bitcoin" ATH market one`, 50_000)},
		"kalshi":     {market("k-1", "kalshi", `"Bitcoin" ATH market two`, 50_000)},
	}}
	b := bus.New()
	d := New(b, src, nil)
	d.RunOnce(context.Background())

	updated := false
	b.Subscribe(bus.EventTrendUpdated, func(_ context.Context, ev bus.Event) {
		if topic, ok := ev.Payload.(model.TrendingTopic); ok && topic.NormalizedTopic == "bitcoin" {
			updated = true
		}
	})

	d.lastCycle = time.Now().Add(-2 * time.Minute)
	src.byPlatform["manifold"] = []model.Market{market("m-1", "manifold", `"Bitcoin" ATH market three`, 200_000)}
	topics := d.RunOnce(context.Background())

	var bitcoin *model.TrendingTopic
	for i := range topics {
		if topics[i].NormalizedTopic == "bitcoin" {
			bitcoin = &topics[i]
		}
	}
	require.NotNil(t, bitcoin)
	assert.Equal(t, 3, bitcoin.TotalMarkets)
	assert.True(t, updated)
}
