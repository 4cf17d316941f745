// Package adapter defines the uniform capability set every venue
// integration implements, plus the shared resilience helpers (retry,
// chunked scans, dedup, circuit breaker, rate limiting) they build on.
package adapter

import (
	"context"
	"time"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// Disposer stops a live subscription. Calling it more than once is a no-op.
type Disposer func()

// OnBet is invoked once per normalized bet observed by a backfill or a live
// subscription.
type OnBet func(model.Bet) error

// MarketOutcome is the result of resolving a single market. Winner is nil
// both pre-resolution and for a legitimate draw/void; Resolved
// disambiguates.
type MarketOutcome struct {
	Resolved   bool
	Winner     *model.Direction
	ResolvedAt *time.Time
}

// Adapter is the contract every venue integration implements, hiding venue
// heterogeneity (subgraph vs REST vs raw log scans) behind one shape.
type Adapter interface {
	Platform() platform.Platform

	// Initialize verifies connectivity (chain-id check for EVM adapters; a
	// 200 probe for REST adapters). Idempotent: safe to call repeatedly.
	Initialize(ctx context.Context) error

	// CurrentCursor returns the venue's current block height (EVM) or epoch
	// number (REST), used as a freshness probe.
	CurrentCursor(ctx context.Context) (int64, error)

	// GetBetsForUser returns a trader's bets, optionally only those after
	// since. API-first; falls back to an on-chain log scan only when the API
	// returned empty AND the venue has on-chain primitives; callers can
	// distinguish via BetsForUserResult.PartialCoverage.
	GetBetsForUser(ctx context.Context, trader string, since *time.Time) (BetsForUserResult, error)

	GetBetsForMarket(ctx context.Context, marketID string) ([]model.Bet, error)
	GetTraderBets(ctx context.Context, trader string, limit int) ([]model.Bet, error)
	GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]model.Bet, error)

	GetMarketOutcome(ctx context.Context, marketID string) (MarketOutcome, error)
	GetActiveMarkets(ctx context.Context, limit int) ([]model.Market, error)
	IsMarketActive(ctx context.Context, marketID string) (bool, error)

	// Backfill streams bets in chunks between fromBlock and toBlock, calling
	// onBet per bet. Must be restartable from any fromBlock.
	Backfill(ctx context.Context, fromBlock, toBlock int64, onBet OnBet) error

	// Subscribe starts a live feed and returns a disposer. Adapters without
	// a native WebSocket implement polling subscription internally; callers
	// cannot tell the difference from this interface.
	Subscribe(ctx context.Context, onBet OnBet) (Disposer, error)
}

// BetsForUserResult carries GetBetsForUser's bets alongside whether the
// result came from an incomplete on-chain fallback, so callers never
// silently mix partial sources into a full-coverage result set.
type BetsForUserResult struct {
	Bets            []model.Bet
	PartialCoverage bool
	Source          string // "api" or "onchain_fallback"
}
