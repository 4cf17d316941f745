package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

// fakeBetRepo, fakeMarketRepo and fakeStatsRepo are minimal in-memory
// implementations of the store interfaces Pipeline depends on, following the
// same plain-map fake style used across the analyzer packages' tests.

type fakeBetRepo struct {
	byKey map[string]model.Bet
}

func newFakeBetRepo() *fakeBetRepo { return &fakeBetRepo{byKey: map[string]model.Bet{}} }

func (r *fakeBetRepo) key(platformID platform.Platform, txHash string, logIndex int) string {
	return string(platformID) + "|" + txHash + "|" + string(rune(logIndex))
}

func (r *fakeBetRepo) Upsert(_ context.Context, b model.Bet) error {
	k := r.key(b.NaturalKey())
	if _, exists := r.byKey[k]; exists {
		return nil
	}
	r.byKey[k] = b
	return nil
}

func (r *fakeBetRepo) ListByTrader(_ context.Context, trader string, platformID platform.Platform, limit int) ([]model.Bet, error) {
	var out []model.Bet
	for _, b := range r.byKey {
		if b.Trader == trader && b.Platform == platformID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBetRepo) ListByMarket(_ context.Context, platformID platform.Platform, marketID string) ([]model.Bet, error) {
	var out []model.Bet
	for _, b := range r.byKey {
		if b.Platform == platformID && b.MarketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBetRepo) ListByTraderInRange(ctx context.Context, trader string, platformID platform.Platform, _ store.TimeRange) ([]model.Bet, error) {
	return r.ListByTrader(ctx, trader, platformID, 0)
}

func (r *fakeBetRepo) MarkResolved(_ context.Context, platformID platform.Platform, marketID string, bullWins *bool) error {
	for k, b := range r.byKey {
		if b.Platform == platformID && b.MarketID == marketID {
			b.ResolveAgainst(bullWins)
			r.byKey[k] = b
		}
	}
	return nil
}

type fakeMarketRepo struct {
	byKey map[string]model.Market
}

func newFakeMarketRepo() *fakeMarketRepo { return &fakeMarketRepo{byKey: map[string]model.Market{}} }

func (r *fakeMarketRepo) Upsert(_ context.Context, m model.Market) error {
	r.byKey[string(m.Platform)+"|"+m.ID] = m
	return nil
}

func (r *fakeMarketRepo) Get(_ context.Context, platformID platform.Platform, marketID string) (model.Market, bool, error) {
	m, ok := r.byKey[string(platformID)+"|"+marketID]
	return m, ok, nil
}

func (r *fakeMarketRepo) ListActive(context.Context, platform.Platform, int) ([]model.Market, error) {
	return nil, nil
}

type fakeStatsRepo struct {
	byKey map[string]model.UserStats
}

func newFakeStatsRepo() *fakeStatsRepo { return &fakeStatsRepo{byKey: map[string]model.UserStats{}} }

func (r *fakeStatsRepo) Upsert(_ context.Context, s model.UserStats) error {
	r.byKey[s.Trader+"|"+string(s.Platform)] = s
	return nil
}

func (r *fakeStatsRepo) Get(_ context.Context, trader string, platformID platform.Platform) (model.UserStats, bool, error) {
	s, ok := r.byKey[trader+"|"+string(platformID)]
	return s, ok, nil
}

func (r *fakeStatsRepo) ListByTrader(_ context.Context, trader string) ([]model.UserStats, error) {
	var out []model.UserStats
	for _, s := range r.byKey {
		if s.Trader == trader {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStatsRepo) ListTraders(context.Context) ([]string, error) { return nil, nil }

func newTestStore() *store.Store {
	return &store.Store{
		Bets:    newFakeBetRepo(),
		Markets: newFakeMarketRepo(),
		Stats:   newFakeStatsRepo(),
	}
}

func TestPipeline_HandleBet_IsIdempotentAndRecomputesStats(t *testing.T) {
	st := newTestStore()
	p := New(st, bus.New(), zerolog.Nop())

	bet := model.Bet{
		ID: "bet-1", Trader: "0xabc", Platform: "pancakeswap-prediction", MarketID: "7",
		Direction: model.DirectionBull, Amount: model.FromFloat(10),
		Timestamp: time.Now(), TxHash: "0xtx1", LogIndex: 0,
	}

	require.NoError(t, p.HandleBet(context.Background(), bet))
	require.NoError(t, p.HandleBet(context.Background(), bet)) // same natural key, repeat ingest

	bets, err := st.Bets.ListByTrader(context.Background(), "0xabc", "pancakeswap-prediction", 10)
	require.NoError(t, err)
	assert.Len(t, bets, 1)

	stats, ok, err := st.Stats.Get(context.Background(), "0xabc", "pancakeswap-prediction")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Wins)
}

func TestPipeline_ResolveMarket_MarksBetsWonAgainstBullWins(t *testing.T) {
	st := newTestStore()
	eventBus := bus.New()
	p := New(st, eventBus, zerolog.Nop())

	require.NoError(t, p.HandleBet(context.Background(), model.Bet{
		ID: "bet-bull", Trader: "0xbull", Platform: "polymarket", MarketID: "round-9",
		Direction: model.DirectionBull, Amount: model.FromFloat(5), Timestamp: time.Now(), TxHash: "0xa", LogIndex: 0,
	}))
	require.NoError(t, p.HandleBet(context.Background(), model.Bet{
		ID: "bet-bear", Trader: "0xbear", Platform: "polymarket", MarketID: "round-9",
		Direction: model.DirectionBear, Amount: model.FromFloat(5), Timestamp: time.Now(), TxHash: "0xb", LogIndex: 0,
	}))

	var roundEnded bool
	eventBus.Subscribe(bus.EventRoundEnded, func(context.Context, bus.Event) { roundEnded = true })

	bullWins := true
	winner := model.DirectionBull
	market := model.Market{
		ID: "round-9", Platform: "polymarket", Epoch: 9,
		Resolution: model.Resolution{OracleCalled: true, Winner: &winner},
	}
	require.NoError(t, p.ResolveMarket(context.Background(), market))

	bets, err := st.Bets.ListByMarket(context.Background(), "polymarket", "round-9")
	require.NoError(t, err)
	require.Len(t, bets, 2)
	for _, b := range bets {
		require.NotNil(t, b.Won)
		assert.Equal(t, b.Direction == model.DirectionBull, *b.Won == bullWins)
	}

	assert.True(t, roundEnded)
}

func TestPipeline_PersistSignals_UpsertsOnSignalGenerated(t *testing.T) {
	st := newTestStore()
	signals := newFakeSignalRepo()
	st.Signals = signals
	eventBus := bus.New()
	p := New(st, eventBus, zerolog.Nop())

	dispose := p.PersistSignals(context.Background())
	defer dispose()

	sig := model.SmartMoneySignal{Platform: "polymarket", Epoch: 42, Consensus: model.ConsensusBull}
	eventBus.Emit(context.Background(), bus.EventSignalGenerated, sig)

	got, ok, err := signals.Current(context.Background(), "polymarket")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.Epoch)
}

type fakeSignalRepo struct {
	byPlatform map[platform.Platform]model.SmartMoneySignal
}

func newFakeSignalRepo() *fakeSignalRepo {
	return &fakeSignalRepo{byPlatform: map[platform.Platform]model.SmartMoneySignal{}}
}

func (r *fakeSignalRepo) Upsert(_ context.Context, s model.SmartMoneySignal) error {
	r.byPlatform[s.Platform] = s
	return nil
}

func (r *fakeSignalRepo) Current(_ context.Context, platformID platform.Platform) (model.SmartMoneySignal, bool, error) {
	s, ok := r.byPlatform[platformID]
	return s, ok, nil
}

func (r *fakeSignalRepo) History(context.Context, int) ([]model.SmartMoneySignal, error) {
	return nil, nil
}
