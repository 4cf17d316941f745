package ingest

import (
	"context"
	"time"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/analyzer/antigaming"
	"github.com/truthfeed/engine/internal/analyzer/backtest"
	"github.com/truthfeed/engine/internal/analyzer/crosssignal"
	"github.com/truthfeed/engine/internal/analyzer/trend"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

// Registry resolves the live adapter for a platform. cmd/truthfeed's
// composition root builds the only one; the type is a plain map.
type Registry map[platform.Platform]adapter.Adapter

// trendMarketSource adapts Registry to trend.MarketSource: the trend
// detector wants each cycle's currently-open markets straight from the
// venue, not a possibly-stale store snapshot.
type trendMarketSource struct{ reg Registry }

func (s trendMarketSource) GetActiveMarkets(ctx context.Context, p platform.Platform, limit int) ([]model.Market, error) {
	a, ok := s.reg[p]
	if !ok {
		return nil, nil
	}
	return a.GetActiveMarkets(ctx, limit)
}

// topicStore adapts store.TopicRepo's Upsert to trend.Store's UpsertTopic.
type topicStore struct{ repo store.TopicRepo }

func (s topicStore) UpsertTopic(ctx context.Context, t model.TrendingTopic) error {
	return s.repo.Upsert(ctx, t)
}

// marketLookup adapts store.MarketRepo to crosssignal.MarketLookup, whose
// GetMarket takes no platform argument. A TrendingTopic's PlatformPresence
// already scopes TopMarkets to the platform it came from, so fanning a bare
// marketID out across every registered venue until one matches is safe in
// practice; the small fixed cost (at most one store lookup per platform)
// is worth not having to touch the already-tested crosssignal package's
// interface.
type marketLookup struct{ repo store.MarketRepo }

func (s marketLookup) GetMarket(ctx context.Context, marketID string) (model.Market, bool, error) {
	for _, p := range platform.All() {
		m, ok, err := s.repo.Get(ctx, p, marketID)
		if err != nil {
			return model.Market{}, false, err
		}
		if ok {
			return m, true, nil
		}
	}
	return model.Market{}, false, nil
}

// crossSignalStore adapts store.CrossSignalRepo's Upsert to
// crosssignal.Store's UpsertCrossSignal.
type crossSignalStore struct{ repo store.CrossSignalRepo }

func (s crossSignalStore) UpsertCrossSignal(ctx context.Context, sig model.CrossPlatformSignal) error {
	return s.repo.Upsert(ctx, sig)
}

// alertStore adapts store.AlertRepo's differently-named methods to
// antigaming.Store.
type alertStore struct{ repo store.AlertRepo }

func (s alertStore) HasRecentUnresolvedAlert(ctx context.Context, typ model.AlertType, wallets []string, within time.Duration) (bool, error) {
	return s.repo.HasRecentUnresolved(ctx, typ, wallets, within)
}

func (s alertStore) CreateAlert(ctx context.Context, a model.GamingAlert) error {
	return s.repo.Create(ctx, a)
}

// backtestBetSource adapts store.BetRepo's TimeRange-struct signature to
// backtest.BetSource's two-argument one.
type backtestBetSource struct{ repo store.BetRepo }

func (s backtestBetSource) GetTraderBetsInRange(ctx context.Context, trader string, platformID platform.Platform, start, end time.Time) ([]model.Bet, error) {
	return s.repo.ListByTraderInRange(ctx, trader, platformID, store.TimeRange{From: start, To: end})
}

// backtestResolutionSource derives backtest.ResolutionSource from a
// resolved Market's Resolution. The returned bool is "bull won"; the
// backtest's simulate step folds in each bet's own Direction when applying
// it.
type backtestResolutionSource struct{ repo store.MarketRepo }

func (s backtestResolutionSource) GetMarketOutcome(ctx context.Context, platformID platform.Platform, marketID string) (*bool, bool, error) {
	m, ok, err := s.repo.Get(ctx, platformID, marketID)
	if err != nil {
		return nil, false, err
	}
	if !ok || !m.Resolution.OracleCalled {
		return nil, false, nil
	}
	return m.Resolution.BullWins(), true, nil
}

// The constructors below expose the unexported shims above as the narrow
// interfaces each analyzer package declares for itself, so cmd/truthfeed's
// composition root never needs to know these adapter types exist.

func NewTrendMarketSource(reg Registry) trend.MarketSource { return trendMarketSource{reg: reg} }

func NewTopicStore(repo store.TopicRepo) trend.Store { return topicStore{repo: repo} }

func NewMarketLookup(repo store.MarketRepo) crosssignal.MarketLookup { return marketLookup{repo: repo} }

func NewCrossSignalStore(repo store.CrossSignalRepo) crosssignal.Store {
	return crossSignalStore{repo: repo}
}

func NewAlertStore(repo store.AlertRepo) antigaming.Store { return alertStore{repo: repo} }

func NewBacktestBetSource(repo store.BetRepo) backtest.BetSource {
	return backtestBetSource{repo: repo}
}

func NewBacktestResolutionSource(repo store.MarketRepo) backtest.ResolutionSource {
	return backtestResolutionSource{repo: repo}
}
