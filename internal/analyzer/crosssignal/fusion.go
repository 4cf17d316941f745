// Package crosssignal fuses markets on the same topic across platforms into
// a single consensus.
package crosssignal

import (
	"context"
	"math"
	"time"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
)

// DefaultExpiry is how long a persisted cross-platform signal remains valid.
const DefaultExpiry = time.Hour

// MinPlatforms is the minimum platform presence for fusion eligibility.
const MinPlatforms = 2

// MinConfidence is the drop threshold below which no signal is emitted.
const MinConfidence = 20

// MarketLookup resolves a market by id, used to pick the highest-volume
// market per platform for a topic.
type MarketLookup interface {
	GetMarket(ctx context.Context, marketID string) (model.Market, bool, error)
}

// Store persists a fused cross-platform signal.
type Store interface {
	UpsertCrossSignal(ctx context.Context, s model.CrossPlatformSignal) error
}

// Fuser computes cross-platform signals from trending topics.
type Fuser struct {
	bus     *bus.Bus
	markets MarketLookup
	store   Store
}

func New(b *bus.Bus, markets MarketLookup, store Store) *Fuser {
	return &Fuser{bus: b, markets: markets, store: store}
}

// FuseOne computes a CrossPlatformSignal for one topic, or ok=false when the
// topic doesn't have enough platform presence or falls below the minimum
// confidence.
func (f *Fuser) FuseOne(ctx context.Context, topic model.TrendingTopic) (model.CrossPlatformSignal, bool) {
	if len(topic.Platforms) < MinPlatforms {
		return model.CrossPlatformSignal{}, false
	}

	var signals []model.PlatformSignal
	for _, presence := range topic.Platforms {
		m, ok := f.bestMarket(ctx, presence)
		if !ok {
			continue
		}
		vol := m.BullAmount.Add(m.BearAmount)
		signals = append(signals, model.PlatformSignal{
			Platform:    presence.Platform,
			MarketID:    m.ID,
			Probability: m.BullProbability(),
			Volume:      vol,
		})
	}
	if len(signals) < MinPlatforms {
		return model.CrossPlatformSignal{}, false
	}

	p, totalVolume := volumeWeightedProbability(signals)
	avgDeviation := averageDeviation(signals, p)
	confidence := computeConfidence(p, avgDeviation, len(signals))
	if confidence < MinConfidence {
		return model.CrossPlatformSignal{}, false
	}

	out := model.CrossPlatformSignal{
		Topic:                     topic.NormalizedTopic,
		Consensus:                 classifyConsensus(p, confidence),
		Confidence:                confidence,
		VolumeWeightedProbability: p,
		Platforms:                 signals,
		TotalVolume:               totalVolume,
		MarketCount:               len(signals),
		ExpiresAt:                 time.Now().Add(DefaultExpiry),
	}
	return out, true
}

// Run computes and emits/persists cross-platform signals for every
// qualifying topic in topics.
func (f *Fuser) Run(ctx context.Context, topics []model.TrendingTopic) []model.CrossPlatformSignal {
	var out []model.CrossPlatformSignal
	for _, topic := range topics {
		sig, ok := f.FuseOne(ctx, topic)
		if !ok {
			continue
		}
		f.bus.Emit(ctx, bus.EventCrossSignal, sig)
		if f.store != nil {
			_ = f.store.UpsertCrossSignal(ctx, sig)
		}
		out = append(out, sig)
	}
	return out
}

// bestMarket picks the highest-volume market among a platform presence's
// top markets.
func (f *Fuser) bestMarket(ctx context.Context, presence model.PlatformPresence) (model.Market, bool) {
	var best model.Market
	var bestVol = model.Zero
	found := false
	for _, id := range presence.TopMarkets {
		m, ok, err := f.markets.GetMarket(ctx, id)
		if err != nil || !ok {
			continue
		}
		vol := m.BullAmount.Add(m.BearAmount)
		if !found || vol.Cmp(bestVol) > 0 {
			best, bestVol, found = m, vol, true
		}
	}
	return best, found
}

// volumeWeightedProbability returns sum(p_i*v_i)/sum(v_i) and the total
// volume.
func volumeWeightedProbability(signals []model.PlatformSignal) (float64, model.Amount) {
	var weighted, totalVol float64
	total := model.Zero
	for _, s := range signals {
		v := s.Volume.Float64()
		weighted += s.Probability * v
		totalVol += v
		total = total.Add(s.Volume)
	}
	if totalVol == 0 {
		return 0.5, total
	}
	return weighted / totalVol, total
}

// averageDeviation is the mean absolute deviation of each platform's
// probability from the fused probability.
func averageDeviation(signals []model.PlatformSignal, p float64) float64 {
	var sum float64
	for _, s := range signals {
		sum += math.Abs(s.Probability - p)
	}
	return sum / float64(len(signals))
}

// computeConfidence sums a directional component, an agreement component
// penalized by deviation, and a breadth component.
func computeConfidence(p, avgDeviation float64, platforms int) float64 {
	directional := math.Abs(p-0.5) * 2 * 40
	agreement := math.Max(0, 30-avgDeviation*60)
	breadth := math.Min(float64(platforms)*10, 30)
	return math.Round(directional + agreement + breadth)
}

// classifyConsensus buckets the fused probability into a consensus label.
func classifyConsensus(p, confidence float64) model.PlatformConsensus {
	switch {
	case p >= 0.75 && confidence >= 60:
		return model.ConsensusStrongYes
	case p <= 0.25 && confidence >= 60:
		return model.ConsensusStrongNo
	case p >= 0.55:
		return model.ConsensusLeanYes
	case p <= 0.45:
		return model.ConsensusLeanNo
	default:
		return model.ConsensusMixed
	}
}
