package crosssignal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
)

type fakeMarkets struct{ byID map[string]model.Market }

func (f *fakeMarkets) GetMarket(_ context.Context, id string) (model.Market, bool, error) {
	m, ok := f.byID[id]
	return m, ok, nil
}

func probMarket(id string, p, volume float64) model.Market {
	return model.Market{ID: id, BullAmount: model.FromFloat(p * volume), BearAmount: model.FromFloat((1 - p) * volume)}
}

func TestFuseOne_ThreePlatformLeanYes(t *testing.T) {
	markets := &fakeMarkets{byID: map[string]model.Market{
		"pm-elect":  probMarket("pm-elect", 0.72, 10_000),
		"k-elect":   probMarket("k-elect", 0.68, 8_000),
		"man-elect": probMarket("man-elect", 0.70, 2_000),
	}}
	topic := model.TrendingTopic{
		NormalizedTopic: "election",
		Platforms: []model.PlatformPresence{
			{Platform: "polymarket", TopMarkets: []string{"pm-elect"}},
			{Platform: "kalshi", TopMarkets: []string{"k-elect"}},
			{Platform: "manifold", TopMarkets: []string{"man-elect"}},
		},
	}

	f := New(bus.New(), markets, nil)
	sig, ok := f.FuseOne(context.Background(), topic)

	require.True(t, ok)
	assert.InDelta(t, 0.702, sig.VolumeWeightedProbability, 0.001)
	assert.InDelta(t, 75, sig.Confidence, 1)
	assert.Equal(t, model.ConsensusLeanYes, sig.Consensus)
	assert.Equal(t, 3, sig.MarketCount)
}

func TestFuseOne_DropsSinglePlatformTopic(t *testing.T) {
	markets := &fakeMarkets{byID: map[string]model.Market{"a": probMarket("a", 0.9, 1000)}}
	topic := model.TrendingTopic{
		NormalizedTopic: "lonely",
		Platforms:       []model.PlatformPresence{{Platform: "polymarket", TopMarkets: []string{"a"}}},
	}
	f := New(bus.New(), markets, nil)
	_, ok := f.FuseOne(context.Background(), topic)
	assert.False(t, ok)
}

func TestClassifyConsensus_Boundaries(t *testing.T) {
	assert.Equal(t, model.ConsensusStrongYes, classifyConsensus(0.8, 70))
	assert.Equal(t, model.ConsensusStrongNo, classifyConsensus(0.1, 70))
	assert.Equal(t, model.ConsensusLeanYes, classifyConsensus(0.6, 40))
	assert.Equal(t, model.ConsensusLeanNo, classifyConsensus(0.4, 40))
	assert.Equal(t, model.ConsensusMixed, classifyConsensus(0.5, 40))
}
