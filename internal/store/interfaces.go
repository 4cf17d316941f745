// Package store defines the persistent store facade: logical CRUD over
// traders, bets, markets, signals, alerts, and topics, with idempotent
// upsert keyed by natural identifiers.
package store

import (
	"context"
	"time"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// TimeRange bounds a time-windowed query.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// BetRepo persists canonical bets, idempotent on (platform, txHash,
// logIndex).
type BetRepo interface {
	// Upsert inserts a bet, or is a no-op success if its natural key
	// already exists, so the same event ingested twice stores one row.
	Upsert(ctx context.Context, b model.Bet) error
	ListByTrader(ctx context.Context, trader string, platformID platform.Platform, limit int) ([]model.Bet, error)
	ListByMarket(ctx context.Context, platformID platform.Platform, marketID string) ([]model.Bet, error)
	ListByTraderInRange(ctx context.Context, trader string, platformID platform.Platform, tr TimeRange) ([]model.Bet, error)
	// MarkResolved sets Won for every bet on a round once it resolves.
	MarkResolved(ctx context.Context, platformID platform.Platform, marketID string, bullWins *bool) error
}

// MarketRepo persists markets/rounds.
type MarketRepo interface {
	Upsert(ctx context.Context, m model.Market) error
	Get(ctx context.Context, platformID platform.Platform, marketID string) (model.Market, bool, error)
	ListActive(ctx context.Context, platformID platform.Platform, limit int) ([]model.Market, error)
}

// StatsRepo persists per-(trader, platform) rollups, the scoring engine's
// sole input.
type StatsRepo interface {
	Upsert(ctx context.Context, s model.UserStats) error
	Get(ctx context.Context, trader string, platformID platform.Platform) (model.UserStats, bool, error)
	ListByTrader(ctx context.Context, trader string) ([]model.UserStats, error)
	// ListTraders returns every trader with at least one stats row, the
	// scorer's enumeration source for a full leaderboard refresh.
	ListTraders(ctx context.Context) ([]string, error)
}

// LeaderboardRepo serves the denormalized leaderboard_view and doubles as
// smartmoney.ScoreLookup.
type LeaderboardRepo interface {
	TopTraders(ctx context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error)
	Unified(ctx context.Context, limit int) ([]model.TruthScore, error)
	Get(ctx context.Context, trader string) (model.TruthScore, bool, error)
	Refresh(ctx context.Context, scores []model.TruthScore) error
}

// SignalRepo persists smart-money signals, unique on (platform, epoch).
type SignalRepo interface {
	Upsert(ctx context.Context, s model.SmartMoneySignal) error
	Current(ctx context.Context, platformID platform.Platform) (model.SmartMoneySignal, bool, error)
	History(ctx context.Context, limit int) ([]model.SmartMoneySignal, error)
}

// TopicRepo persists trending topics, unique on normalizedTopic.
type TopicRepo interface {
	Upsert(ctx context.Context, t model.TrendingTopic) error
	Top(ctx context.Context, limit int) ([]model.TrendingTopic, error)
}

// CrossSignalRepo persists cross-platform signals.
type CrossSignalRepo interface {
	Upsert(ctx context.Context, s model.CrossPlatformSignal) error
	Strongest(ctx context.Context, limit int) ([]model.CrossPlatformSignal, error)
}

// AlertRepo persists gaming alerts and answers duplicate-suppression
// queries.
type AlertRepo interface {
	Create(ctx context.Context, a model.GamingAlert) error
	HasRecentUnresolved(ctx context.Context, typ model.AlertType, wallets []string, within time.Duration) (bool, error)
	Pending(ctx context.Context) ([]model.GamingAlert, error)
	UpdateStatus(ctx context.Context, id string, status model.AlertStatus, reviewer, notes string) error
	Get(ctx context.Context, id string) (model.GamingAlert, bool, error)
}

// BacktestCacheRepo persists backtest results keyed by (leader, range,
// settingsHash) with a TTL.
type BacktestCacheRepo interface {
	Get(ctx context.Context, leader string, start, end time.Time, settingsHash string) (model.BacktestResult, bool, error)
	Put(ctx context.Context, result model.BacktestResult, ttl time.Duration) error
}

// Store aggregates every repository the engine's components depend on. A
// single implementation (internal/store/postgres) backs production; tests
// construct fakes per-repository instead of the whole aggregate.
type Store struct {
	Bets          BetRepo
	Markets       MarketRepo
	Stats         StatsRepo
	Leaderboard   LeaderboardRepo
	Signals       SignalRepo
	Topics        TopicRepo
	CrossSignals  CrossSignalRepo
	Alerts        AlertRepo
	BacktestCache BacktestCacheRepo
}
