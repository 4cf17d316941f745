package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/scoring"
	"github.com/truthfeed/engine/internal/store"
)

// DefaultScoreRefreshInterval is the leaderboard recompute cadence.
const DefaultScoreRefreshInterval = time.Minute

// Scorer periodically recomputes every trader's TruthScore from their
// current UserStats and refreshes the denormalized leaderboard.
type Scorer struct {
	store    *store.Store
	interval time.Duration
	log      zerolog.Logger
}

// NewScorer wires a Scorer against the store.
func NewScorer(st *store.Store, log zerolog.Logger) *Scorer {
	return &Scorer{store: st, interval: DefaultScoreRefreshInterval, log: log.With().Str("component", "scorer").Logger()}
}

// RefreshOnce recomputes every trader's score and the leaderboard a single
// time, the one-shot path the CLI's score command drives.
func (s *Scorer) RefreshOnce(ctx context.Context) {
	s.refresh(ctx)
}

// Run recomputes the leaderboard on a fixed cadence until ctx is cancelled.
func (s *Scorer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Scorer) refresh(ctx context.Context) {
	traders, err := s.store.Stats.ListTraders(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("list traders failed")
		return
	}

	scores := make([]model.TruthScore, 0, len(traders))
	for _, trader := range traders {
		stats, err := s.store.Stats.ListByTrader(ctx, trader)
		if err != nil {
			s.log.Warn().Err(err).Str("trader", trader).Msg("list stats failed")
			continue
		}
		if len(stats) == 0 {
			continue
		}
		scores = append(scores, scoring.Compute(trader, stats))
	}

	if err := s.store.Leaderboard.Refresh(ctx, scores); err != nil {
		s.log.Warn().Err(err).Msg("leaderboard refresh failed")
	}
}
