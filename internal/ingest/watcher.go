package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/model"
)

// DefaultWatchInterval is how often MarketWatcher re-polls active markets
// for a lock/resolve transition, independent of each adapter's own
// PollInterval. The adapter's GetMarketOutcome is the source of truth; the
// watcher only decides when to ask.
const DefaultWatchInterval = 30 * time.Second

// MarketWatcher polls every registered adapter's active markets, detects
// when a round crosses its lock time or resolves, and drives Pipeline
// accordingly.
type MarketWatcher struct {
	reg      Registry
	pipeline *Pipeline
	interval time.Duration
	log      zerolog.Logger

	seenLocked map[string]bool
}

// NewMarketWatcher wires a watcher against every adapter in reg.
func NewMarketWatcher(reg Registry, pipeline *Pipeline, log zerolog.Logger) *MarketWatcher {
	return &MarketWatcher{
		reg:        reg,
		pipeline:   pipeline,
		interval:   DefaultWatchInterval,
		log:        log.With().Str("component", "market_watcher").Logger(),
		seenLocked: make(map[string]bool),
	}
}

// Run polls until ctx is cancelled.
func (w *MarketWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.scanAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanAll(ctx)
		}
	}
}

func (w *MarketWatcher) scanAll(ctx context.Context) {
	for p, a := range w.reg {
		markets, err := a.GetActiveMarkets(ctx, 200)
		if err != nil {
			w.log.Warn().Err(err).Str("platform", string(p)).Msg("active markets poll failed")
			continue
		}
		for _, m := range markets {
			w.scanOne(ctx, a, m)
		}
	}
}

func (w *MarketWatcher) scanOne(ctx context.Context, a adapter.Adapter, m model.Market) {
	key := string(m.Platform) + "|" + m.ID

	if !w.seenLocked[key] && !m.LockAt.IsZero() && time.Now().After(m.LockAt) {
		w.seenLocked[key] = true
		w.pipeline.LockRound(ctx, m.Platform, m.Epoch)
	}

	outcome, err := a.GetMarketOutcome(ctx, m.ID)
	if err != nil {
		w.log.Warn().Err(err).Str("platform", string(m.Platform)).Str("market", m.ID).
			Msg("outcome poll failed")
		return
	}
	if !outcome.Resolved {
		return
	}

	m.Resolution = model.Resolution{OracleCalled: true, Winner: outcome.Winner, ResolvedAt: outcome.ResolvedAt}
	if err := w.pipeline.ResolveMarket(ctx, m); err != nil {
		w.log.Warn().Err(err).Str("platform", string(m.Platform)).Str("market", m.ID).
			Msg("resolve market failed")
		return
	}
	delete(w.seenLocked, key)
}
