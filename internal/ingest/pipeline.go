// Package ingest wires the adapter layer's live bet and round feeds into
// the persistent store and the event bus, and keeps each trader's
// UserStats rollup (the scoring engine's sole input) current as bets
// arrive and resolve.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/analyzer/smartmoney"
	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
	"github.com/truthfeed/engine/internal/store"
)

// maxStatsFold bounds how many of a trader's historical bets the pipeline
// folds into a fresh UserStats whenever one of their bets is ingested or
// resolved, keeping the rollup reproducible from the stored bet history.
const maxStatsFold = 100_000

// Pipeline persists every normalized bet an adapter produces, republishes it
// on the bus, and keeps the ingesting trader's UserStats rollup current.
type Pipeline struct {
	store *store.Store
	bus   *bus.Bus
	log   zerolog.Logger
}

// New wires a Pipeline against the engine's store and bus.
func New(st *store.Store, b *bus.Bus, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: st, bus: b, log: log.With().Str("component", "ingest").Logger()}
}

// HandleBet is the adapter.OnBet callback passed to every adapter's
// Backfill and Subscribe. It upserts the bet (idempotent on its natural
// key, so the same event ingested twice stores one row), emits
// BET_DETECTED, and recomputes the trader's rollup.
func (p *Pipeline) HandleBet(ctx context.Context, b model.Bet) error {
	if err := p.store.Bets.Upsert(ctx, b); err != nil {
		return fmt.Errorf("ingest: upsert bet %s: %w", b.ID, err)
	}
	p.log.Debug().Str("trader", b.Trader).Str("platform", string(b.Platform)).
		Str("amount", b.Amount.Display()).Msg("bet ingested")
	p.bus.Emit(ctx, bus.EventBetDetected, b)
	if err := p.recomputeStats(ctx, b.Trader, b.Platform); err != nil {
		p.log.Warn().Err(err).Str("trader", b.Trader).Str("platform", string(b.Platform)).
			Msg("stats recompute failed")
	}
	return nil
}

func (p *Pipeline) recomputeStats(ctx context.Context, trader string, platformID platform.Platform) error {
	bets, err := p.store.Bets.ListByTrader(ctx, trader, platformID, maxStatsFold)
	if err != nil {
		return err
	}
	stats := model.UserStats{Trader: trader, Platform: platformID}
	for _, b := range bets {
		stats.ApplyBet(b)
	}
	stats.Recompute()
	return p.store.Stats.Upsert(ctx, stats)
}

// ResolveMarket persists m (whose Resolution is expected to already carry
// the round's outcome), marks every bet on the round won or lost, emits
// ROUND_ENDED, and recomputes stats for every trader who had a bet on the
// round. A no-op beyond the market upsert if m isn't yet resolved.
func (p *Pipeline) ResolveMarket(ctx context.Context, m model.Market) error {
	if err := p.store.Markets.Upsert(ctx, m); err != nil {
		return fmt.Errorf("ingest: upsert market %s: %w", m.ID, err)
	}
	if !m.Resolution.OracleCalled {
		return nil
	}

	bullWins := m.Resolution.BullWins()
	if err := p.store.Bets.MarkResolved(ctx, m.Platform, m.ID, bullWins); err != nil {
		return fmt.Errorf("ingest: mark resolved %s: %w", m.ID, err)
	}

	bets, err := p.store.Bets.ListByMarket(ctx, m.Platform, m.ID)
	if err != nil {
		return fmt.Errorf("ingest: list market bets %s: %w", m.ID, err)
	}
	seen := make(map[string]bool, len(bets))
	for _, b := range bets {
		if seen[b.Trader] {
			continue
		}
		seen[b.Trader] = true
		if err := p.recomputeStats(ctx, b.Trader, m.Platform); err != nil {
			p.log.Warn().Err(err).Str("trader", b.Trader).Msg("post-resolution stats recompute failed")
		}
	}

	p.bus.Emit(ctx, bus.EventRoundEnded, smartmoney.RoundEventPayload{
		Platform: m.Platform, Epoch: m.Epoch, BullWins: bullWins,
	})
	return nil
}

// LockRound emits ROUND_LOCKED for the given round, the signal the
// smartmoney aggregator needs to freeze its working consensus.
func (p *Pipeline) LockRound(ctx context.Context, platformID platform.Platform, epoch int64) {
	p.bus.Emit(ctx, bus.EventRoundLocked, smartmoney.RoundEventPayload{Platform: platformID, Epoch: epoch})
}

// PersistSignals subscribes to SIGNAL_GENERATED and upserts every emission
// to the store, keyed idempotently on (platform, epoch). The running
// consensus converges to the final locked value since upsert always
// overwrites with the latest.
func (p *Pipeline) PersistSignals(ctx context.Context) bus.Disposer {
	return p.bus.Subscribe(bus.EventSignalGenerated, func(ctx context.Context, ev bus.Event) {
		sig, ok := ev.Payload.(model.SmartMoneySignal)
		if !ok {
			return
		}
		if err := p.store.Signals.Upsert(ctx, sig); err != nil {
			p.log.Warn().Err(err).Str("platform", string(sig.Platform)).Int64("epoch", sig.Epoch).
				Msg("signal persist failed")
		}
	})
}
