package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

type fakeBetSource struct{ bets []model.Bet }

func (f *fakeBetSource) GetTraderBetsInRange(_ context.Context, _ string, _ platform.Platform, _, _ time.Time) ([]model.Bet, error) {
	return f.bets, nil
}

type fakeResolver struct{ outcomes map[string]bool }

func (f *fakeResolver) GetMarketOutcome(_ context.Context, _ platform.Platform, marketID string) (*bool, bool, error) {
	won, ok := f.outcomes[marketID]
	if !ok {
		return nil, false, nil
	}
	return &won, true, nil
}

type fakeCache struct {
	stored map[string]model.BacktestResult
}

func (f *fakeCache) Get(_ context.Context, leader string, start, end time.Time, hash string) (model.BacktestResult, bool, error) {
	r, ok := f.stored[hash]
	return r, ok, nil
}

func (f *fakeCache) Put(_ context.Context, result model.BacktestResult, _ time.Duration) error {
	if f.stored == nil {
		f.stored = make(map[string]model.BacktestResult)
	}
	f.stored[result.SettingsHash] = result
	return nil
}

func TestRun_TenBetSixWinReplay(t *testing.T) {
	var bets []model.Bet
	outcomes := make(map[string]bool)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		bets = append(bets, model.Bet{
			ID: id, MarketID: id, Trader: "0xleader", Direction: model.DirectionBull,
			Amount: model.FromFloat(0.1), Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		outcomes[id] = i < 6 // first 6 win, last 4 lose
	}

	eng := New(&fakeBetSource{bets: bets}, &fakeResolver{outcomes: outcomes}, nil, 0)
	settings := model.BacktestSettings{
		Leader: "0xleader", Start: base, End: base.Add(10 * 24 * time.Hour),
		InitialCapital: model.FromFloat(1), AllocationPercent: 100, Compounding: false,
	}
	// Use the real registry entry rather than a fabricated zero-fee stand-in:
	// pancakeswap-prediction's FeeBps:300 must not shave anything further off
	// its already-net PayoutMultiplier:1.9 (platform.Info.NetPayout).
	platformID := platform.Platform("pancakeswap-prediction")
	info, ok := platform.Lookup(platformID)
	require.True(t, ok)

	result := eng.simulate(context.Background(), platformID, info, settings, bets)

	assert.Equal(t, 10, result.Metrics.TotalTrades)
	assert.InDelta(t, 60, result.Metrics.WinRate, 0.01)
	assert.InDelta(t, 14, result.Metrics.TotalReturnPercent, 0.1)
}

func TestSettingsHash_Deterministic(t *testing.T) {
	s := model.BacktestSettings{Leader: "0xa", InitialCapital: model.FromFloat(1), AllocationPercent: 50, MaxBetSize: model.FromFloat(0.5)}
	assert.Equal(t, SettingsHash(s), SettingsHash(s))
}

func TestRun_CacheHitSkipsRefetch(t *testing.T) {
	cache := &fakeCache{}
	settings := model.BacktestSettings{Leader: "0xleader", InitialCapital: model.FromFloat(1), AllocationPercent: 100}
	hash := SettingsHash(settings)
	cached := model.BacktestResult{Settings: settings, SettingsHash: hash}
	cache.Put(context.Background(), cached, time.Hour)

	eng := New(&fakeBetSource{}, &fakeResolver{outcomes: map[string]bool{}}, cache, 0)
	result, err := eng.Run(context.Background(), "polymarket", settings)
	require.NoError(t, err)
	assert.Equal(t, hash, result.SettingsHash)
}

func TestSimulate_HaltsOnStopLoss(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var bets []model.Bet
	outcomes := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		bets = append(bets, model.Bet{ID: id, MarketID: id, Amount: model.FromFloat(0.5), Timestamp: base.Add(time.Duration(i) * time.Hour)})
		outcomes[id] = false // all lose
	}
	stopLoss := 20.0
	settings := model.BacktestSettings{
		InitialCapital: model.FromFloat(1), AllocationPercent: 30, StopLossPercent: &stopLoss,
	}
	eng := New(&fakeBetSource{bets: bets}, &fakeResolver{outcomes: outcomes}, nil, 0)
	platformID := platform.Platform("pancakeswap-prediction")
	info, ok := platform.Lookup(platformID)
	require.True(t, ok)

	result := eng.simulate(context.Background(), platformID, info, settings, bets)
	assert.True(t, result.HaltedByStopLoss)
	assert.Less(t, len(result.Trades), 5)
}
