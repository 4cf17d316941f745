// Package scoring implements the TruthScore engine: a pure function of a
// trader's UserStats rollups into a tiered reputation score. Everything in
// this package is deterministic and side-effect-free so a score is always
// reproducible from the current stats.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// MinBetsForFullScore damps small samples on binary venues.
const MinBetsForFullScore = 100

// RecencyWindow is the default window within which a recency bonus applies.
const RecencyWindow = 90 * 24 * time.Hour

// RecencyBonus is added to totalScore when last activity falls in the
// recency window.
const RecencyBonus = 20

// wilsonZ is the z-score for a 95% confidence lower bound.
const wilsonZ = 1.96

// PlatformWeight returns the per-platform weight applied to platformScore
// before summation. All platforms default to 1.0; the engine has no
// standing reason to trust one venue's dollar more than another's.
func PlatformWeight(platform.Platform) float64 { return 1.0 }

// PlatformScore computes the base per-platform score shared by both venue
// families, before the family-specific adjustment (Wilson bound for binary
// venues, ROI weighting for odds venues) is applied.
func PlatformScore(s model.UserStats) float64 {
	winPoints := float64(s.Wins) * 100

	var winRateBonus float64
	if s.WinRate > 55 {
		winRateBonus = (s.WinRate - 55) * 10
	}

	volumeBonus := math.Min(500, math.Floor(s.Volume.Float64()*10))

	var consistency float64
	switch {
	case s.TotalBets >= 100:
		consistency = 300
	case s.TotalBets >= 50:
		consistency = 200
	case s.TotalBets >= 20:
		consistency = 100
	}

	return math.Floor(winPoints + winRateBonus + volumeBonus + consistency)
}

// AdjustedPlatformScore applies the venue-family-specific damping to a raw
// PlatformScore.
func AdjustedPlatformScore(s model.UserStats, info platform.Info) float64 {
	raw := PlatformScore(s)

	switch info.Kind {
	case platform.KindBinaryEVM:
		return binaryAdjustment(raw, s)
	default: // KindOddsEVM, KindOddsREST
		return oddsAdjustment(raw, s)
	}
}

// binaryAdjustment applies a Wilson-lower-bound damping at z=1.96 against
// the 50% random baseline, then scales by sample completeness
// (min(1, totalBets/MinBetsForFullScore)).
func binaryAdjustment(raw float64, s model.UserStats) float64 {
	resolved := s.Wins + s.Losses
	if resolved == 0 {
		return 0
	}

	p := float64(s.Wins) / float64(resolved)
	n := float64(resolved)
	z := wilsonZ

	denominator := 1 + z*z/n
	center := p + z*z/(2*n)
	spread := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))
	lowerBound := (center - spread) / denominator
	if lowerBound < 0 {
		lowerBound = 0
	}

	// lowerBound in [0,1]; the factor stays at 0.5 up to a 50% lower bound
	// and rises linearly to 1.5 at 100%, so raw score is damped below a 75%
	// lower bound, amplified above it, and never goes negative.
	skillFactor := math.Max(0, lowerBound*2-1) + 0.5

	completeness := math.Min(1, float64(s.TotalBets)/MinBetsForFullScore)
	return raw * skillFactor * completeness
}

// oddsAdjustment weights by realized ROI and trade count, adding a recency
// multiplier when the trader's last trade falls within RecencyWindow.
func oddsAdjustment(raw float64, s model.UserStats) float64 {
	resolved := s.Wins + s.Losses
	if resolved == 0 {
		return 0
	}

	roi := (s.WinRate/100)*1.9 - 1 // net ROI at the family's typical 1.9x payout
	roiFactor := 1 + math.Max(-0.5, roi)

	tradeFactor := math.Min(1, math.Log1p(float64(resolved))/math.Log1p(MinBetsForFullScore))

	recencyFactor := 1.0
	if !s.LastBetAt.IsZero() && time.Since(s.LastBetAt) <= RecencyWindow {
		recencyFactor = 1.1
	}

	return raw * roiFactor * tradeFactor * recencyFactor
}

// Compute derives a trader's unified TruthScore from their current set of
// per-platform UserStats rollups: a pure function, reproducible byte-for-
// byte given the same inputs.
func Compute(trader string, stats []model.UserStats) model.TruthScore {
	var total float64
	breakdown := make([]model.PlatformBreakdown, 0, len(stats))
	activePlatforms := 0
	var lastUpdated time.Time

	for _, s := range stats {
		info, ok := platform.Lookup(s.Platform)
		if !ok {
			// Unknown platform stats are tolerated as a zero contribution
			// rather than an error.
			continue
		}

		score := AdjustedPlatformScore(s, info)
		weight := PlatformWeight(s.Platform)
		total += score * weight

		breakdown = append(breakdown, model.PlatformBreakdown{
			Platform: s.Platform,
			Score:    score,
			Weight:   weight,
		})

		if s.TotalBets > 0 {
			activePlatforms++
		}
		if s.LastBetAt.After(lastUpdated) {
			lastUpdated = s.LastBetAt
		}
	}

	if !lastUpdated.IsZero() && time.Since(lastUpdated) <= RecencyWindow {
		total += RecencyBonus
	}

	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].Platform < breakdown[j].Platform
	})

	return model.TruthScore{
		Trader:          trader,
		TotalScore:      total,
		Breakdown:       breakdown,
		Tier:            model.TierForScore(total),
		LastUpdated:     lastUpdated,
		ActivePlatforms: activePlatforms,
	}
}

// Leaderboard orders scores primary by TotalScore descending, tie-broken by
// ActivePlatforms descending. Sorts a copy; the input slice is left
// untouched.
func Leaderboard(scores []model.TruthScore) []model.TruthScore {
	out := make([]model.TruthScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].ActivePlatforms > out[j].ActivePlatforms
	})
	return out
}
