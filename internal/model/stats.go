package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// UserStats is the per-(trader, platform) rollup the scoring engine
// consumes as its sole input.
type UserStats struct {
	Trader   string            `json:"trader"`
	Platform platform.Platform `json:"platform"`

	TotalBets int `json:"totalBets"`
	Wins      int `json:"wins"`
	Losses    int `json:"losses"`
	Pending   int `json:"pending"`

	WinRate float64 `json:"winRate"`
	Volume  Amount  `json:"volume"`
	Score   float64 `json:"score"`

	FirstBetAt time.Time `json:"firstBetAt"`
	LastBetAt  time.Time `json:"lastBetAt"`
}

// Recompute derives WinRate and TotalBets from the counters, so
// totalBets = wins + losses + pending holds by construction.
func (s *UserStats) Recompute() {
	s.TotalBets = s.Wins + s.Losses + s.Pending
	denom := s.Wins + s.Losses
	if denom == 0 {
		s.WinRate = 0
		return
	}
	s.WinRate = float64(s.Wins) / float64(denom) * 100
}

// ApplyBet folds one resolved-or-pending bet into the rollup. Callers must
// call Recompute afterward; ApplyBet only touches the raw counters so a
// caller folding many bets can batch the recompute.
func (s *UserStats) ApplyBet(b Bet) {
	if s.FirstBetAt.IsZero() || b.Timestamp.Before(s.FirstBetAt) {
		s.FirstBetAt = b.Timestamp
	}
	if b.Timestamp.After(s.LastBetAt) {
		s.LastBetAt = b.Timestamp
	}
	s.Volume = s.Volume.Add(b.Amount)

	switch {
	case b.Won == nil:
		s.Pending++
	case *b.Won:
		s.Wins++
	default:
		s.Losses++
	}
}
