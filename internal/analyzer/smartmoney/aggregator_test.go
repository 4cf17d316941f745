package smartmoney

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

type fakeScoreLookup struct {
	byPlatform map[platform.Platform][]model.TruthScore
}

func (f *fakeScoreLookup) TopTraders(_ context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error) {
	return f.byPlatform[platformID], nil
}

func TestAggregator_EmitsStrongBullSignalForDiamondConsensus(t *testing.T) {
	b := bus.New()
	scores := &fakeScoreLookup{byPlatform: map[platform.Platform][]model.TruthScore{
		"pancakeswap-prediction": {
			{Trader: "0x1", Tier: model.TierDiamond},
			{Trader: "0x2", Tier: model.TierDiamond},
			{Trader: "0x3", Tier: model.TierPlatinum},
			{Trader: "0x4", Tier: model.TierGold},
			{Trader: "0x5", Tier: model.TierGold},
		},
	}}

	a := New(b, scores)
	dispose := a.Start(context.Background(), []platform.Platform{"pancakeswap-prediction"})
	defer dispose()

	time.Sleep(5 * time.Millisecond) // let the initial refreshTracked populate

	var lastSignal model.SmartMoneySignal
	b.Subscribe(bus.EventSignalGenerated, func(_ context.Context, ev bus.Event) {
		lastSignal = ev.Payload.(model.SmartMoneySignal)
	})

	traders := []string{"0x1", "0x2", "0x3", "0x4", "0x5"}
	for _, trader := range traders {
		b.Emit(context.Background(), bus.EventBetDetected, model.Bet{
			Trader:    trader,
			Platform:  "pancakeswap-prediction",
			MarketID:  "42",
			Direction: model.DirectionBull,
			Amount:    model.FromFloat(10),
		})
	}

	require.Equal(t, model.ConsensusBull, lastSignal.Consensus)
	assert.Equal(t, 5, lastSignal.ParticipatingTraders)
	assert.Equal(t, 2, lastSignal.DiamondTraderCount)
	assert.Equal(t, model.StrengthStrong, lastSignal.Strength)
}

func TestAggregator_IgnoresBetsFromUntrackedTraders(t *testing.T) {
	b := bus.New()
	scores := &fakeScoreLookup{byPlatform: map[platform.Platform][]model.TruthScore{
		"polymarket": {{Trader: "0xtracked", Tier: model.TierGold}},
	}}
	a := New(b, scores)
	dispose := a.Start(context.Background(), []platform.Platform{"polymarket"})
	defer dispose()
	time.Sleep(5 * time.Millisecond)

	fired := false
	b.Subscribe(bus.EventSignalGenerated, func(_ context.Context, _ bus.Event) { fired = true })

	b.Emit(context.Background(), bus.EventBetDetected, model.Bet{
		Trader:    "0xstranger",
		Platform:  "polymarket",
		MarketID:  "7",
		Direction: model.DirectionBear,
		Amount:    model.FromFloat(5),
	})

	assert.False(t, fired)
}

func TestComputeConfidence_BoundedToHundred(t *testing.T) {
	confidence := computeConfidence(100, 1_000_000, 50)
	assert.LessOrEqual(t, confidence, 100.0)
	assert.GreaterOrEqual(t, confidence, 0.0)
}
