package model

import (
	"time"

	"github.com/truthfeed/engine/internal/platform"
)

// PlatformPresence records a topic's footprint on a single platform. A
// topic's list carries at most one entry per platform.
type PlatformPresence struct {
	Platform    platform.Platform `json:"platform"`
	MarketCount int               `json:"marketCount"`
	Volume      Amount            `json:"volume"`
	TopMarkets  []string          `json:"topMarkets"`
}

// TrendingTopic is a normalized cross-platform phrase with a volume/velocity
// score. Natural key for upsert: NormalizedTopic.
type TrendingTopic struct {
	NormalizedTopic string            `json:"topic"`
	Category        platform.Category `json:"category"`

	Score        float64 `json:"score"`
	Velocity     float64 `json:"velocity"`
	TotalVolume  Amount  `json:"totalVolume"`
	TotalMarkets int     `json:"totalMarkets"`

	Platforms []PlatformPresence `json:"platforms"`

	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Consistent verifies each platform appears at most once in the presence
// list and the sum of per-platform MarketCount equals TotalMarkets.
func (t TrendingTopic) Consistent() bool {
	seen := make(map[platform.Platform]bool, len(t.Platforms))
	sum := 0
	for _, p := range t.Platforms {
		if seen[p.Platform] {
			return false
		}
		seen[p.Platform] = true
		sum += p.MarketCount
	}
	return sum == t.TotalMarkets
}

// PlatformConsensus is a closed label for the cross-platform fusion result.
type PlatformConsensus string

const (
	ConsensusStrongYes PlatformConsensus = "STRONG_YES"
	ConsensusLeanYes   PlatformConsensus = "LEAN_YES"
	ConsensusMixed     PlatformConsensus = "MIXED"
	ConsensusLeanNo    PlatformConsensus = "LEAN_NO"
	ConsensusStrongNo  PlatformConsensus = "STRONG_NO"
)

// PlatformSignal is one venue's contribution to a CrossPlatformSignal.
type PlatformSignal struct {
	Platform    platform.Platform `json:"platform"`
	MarketID    string            `json:"marketId"`
	Probability float64           `json:"probability"`
	Volume      Amount            `json:"volume"`
}

// CrossPlatformSignal fuses the same topic's markets across venues into one
// consensus. Always carries at least two platforms and a confidence in
// [0,100].
type CrossPlatformSignal struct {
	Topic      string            `json:"topic"`
	Consensus  PlatformConsensus `json:"consensus"`
	Confidence float64           `json:"confidence"`

	VolumeWeightedProbability float64          `json:"volumeWeightedProbability"`
	Platforms                 []PlatformSignal `json:"platforms"`

	TotalVolume Amount    `json:"totalVolume"`
	MarketCount int       `json:"marketCount"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
