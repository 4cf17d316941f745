package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// Mapper translates one venue's wire shapes into canonical model types. Each
// REST venue with an adapter supplies its own Mapper (KalshiMapper,
// ManifoldMapper) so OddsAdapter's control flow (pagination, rate limiting,
// polling) stays shared.
type Mapper interface {
	// HealthPath is probed by Initialize.
	HealthPath() string

	// FetchUserBets returns a trader's orders/bets since an optional cursor.
	FetchUserBets(ctx context.Context, c *Client, trader string, since *time.Time) ([]model.Bet, error)

	FetchMarketBets(ctx context.Context, c *Client, marketID string) ([]model.Bet, error)
	FetchRecentBets(ctx context.Context, c *Client, window time.Duration, limit int) ([]model.Bet, error)
	FetchMarketOutcome(ctx context.Context, c *Client, marketID string) (adapter.MarketOutcome, error)
	FetchActiveMarkets(ctx context.Context, c *Client, limit int) ([]model.Market, error)

	// CurrentEpoch returns a monotonically increasing cursor analogous to a
	// block height; REST venues without a block concept use a
	// server-reported sequence number or the current Unix time.
	CurrentEpoch(ctx context.Context, c *Client) (int64, error)
}

// OddsAdapter implements adapter.Adapter for any REST venue with a Mapper.
// Backfill/Subscribe are identical across every REST venue: Backfill
// re-walks FetchMarketBets for up to 1000 active markets and replays every
// bet they return (REST venues have no block ranges, so fromBlock/toBlock
// are ignored and no window is applied), and
// Subscribe polls FetchRecentBets with a bounded seen-id set, since none of
// this family expose a public bet-level WebSocket feed.
type OddsAdapter struct {
	client       *Client
	mapper       Mapper
	seen         *adapter.SeenIDSet
	pollInterval time.Duration
}

func NewOddsAdapter(c *Client, m Mapper, pollInterval time.Duration) *OddsAdapter {
	return &OddsAdapter{client: c, mapper: m, seen: adapter.NewSeenIDSet(1000), pollInterval: pollInterval}
}

func (a *OddsAdapter) Platform() platform.Platform { return a.client.Info.ID }

func (a *OddsAdapter) Initialize(ctx context.Context) error {
	return a.client.Initialize(ctx, a.mapper.HealthPath())
}

func (a *OddsAdapter) CurrentCursor(ctx context.Context) (int64, error) {
	return a.mapper.CurrentEpoch(ctx, a.client)
}

func (a *OddsAdapter) GetBetsForUser(ctx context.Context, trader string, since *time.Time) (adapter.BetsForUserResult, error) {
	bets, err := a.mapper.FetchUserBets(ctx, a.client, trader, since)
	if err != nil {
		return adapter.BetsForUserResult{}, err
	}
	// REST venues have no on-chain fallback primitive; an empty API result
	// is a definitive "no bets", not partial coverage.
	return adapter.BetsForUserResult{Bets: bets, PartialCoverage: false, Source: "api"}, nil
}

func (a *OddsAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	return a.mapper.FetchMarketBets(ctx, a.client, marketID)
}

func (a *OddsAdapter) GetTraderBets(ctx context.Context, trader string, limit int) ([]model.Bet, error) {
	res, err := a.GetBetsForUser(ctx, trader, nil)
	if err != nil {
		return nil, err
	}
	bets := res.Bets
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *OddsAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]model.Bet, error) {
	return a.mapper.FetchRecentBets(ctx, a.client, window, limit)
}

func (a *OddsAdapter) GetMarketOutcome(ctx context.Context, marketID string) (adapter.MarketOutcome, error) {
	return a.mapper.FetchMarketOutcome(ctx, a.client, marketID)
}

func (a *OddsAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	return a.mapper.FetchActiveMarkets(ctx, a.client, limit)
}

func (a *OddsAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	outcome, err := a.mapper.FetchMarketOutcome(ctx, a.client, marketID)
	if err != nil {
		return false, err
	}
	return !outcome.Resolved, nil
}

func (a *OddsAdapter) Backfill(ctx context.Context, fromBlock, toBlock int64, onBet adapter.OnBet) error {
	markets, err := a.mapper.FetchActiveMarkets(ctx, a.client, 1000)
	if err != nil {
		return err
	}
	for _, m := range markets {
		bets, err := a.mapper.FetchMarketBets(ctx, a.client, m.ID)
		if err != nil {
			a.client.Log.Warn().Err(err).Str("marketId", m.ID).Msg("backfill market fetch failed, continuing")
			continue
		}
		for _, b := range bets {
			if err := onBet(b); err != nil {
				return fmt.Errorf("%s: backfill handler: %w", a.client.Info.ID, err)
			}
		}
	}
	return nil
}

func (a *OddsAdapter) Subscribe(ctx context.Context, onBet adapter.OnBet) (adapter.Disposer, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(a.pollInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				bets, err := a.mapper.FetchRecentBets(pollCtx, a.client, a.pollInterval*3, 500)
				if err != nil {
					a.client.Log.Warn().Err(err).Msg("poll subscription fetch failed")
					continue
				}
				for _, b := range bets {
					if a.seen.SeenBefore(b.ID) {
						continue
					}
					if err := onBet(b); err != nil {
						a.client.Log.Warn().Err(err).Msg("poll subscription handler failed")
					}
				}
			}
		}
	}()

	return adapter.Disposer(cancel), nil
}
