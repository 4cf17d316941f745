package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// PlatformBreakdown is one line of a TruthScore's per-platform attribution.
type PlatformBreakdown struct {
	Platform platform.Platform `json:"platform"`
	Score    float64           `json:"score"`
	Weight   float64           `json:"weight"`
}

// TruthScore is the unified, per-trader reputation derived from UserStats.
// It is never authoritative storage: it must stay reproducible from the
// current UserStats set, which is why the scoring engine is a pure function
// (internal/scoring).
type TruthScore struct {
	Trader      string              `json:"address"`
	TotalScore  float64             `json:"totalScore"`
	Breakdown   []PlatformBreakdown `json:"breakdown"`
	Tier        Tier                `json:"tier"`
	LastUpdated time.Time           `json:"lastUpdated"`

	// ActivePlatforms is the leaderboard tie-break key.
	ActivePlatforms int `json:"activePlatforms"`
}
