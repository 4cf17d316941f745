// Package smartmoney implements the per-round consensus aggregator: for
// each round of each binary venue, decide whether tracked high-tier
// traders are collectively bullish or bearish, and how strongly.
package smartmoney

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// DefaultTrackedTraderCount is the top-N by unified score tracked per
// platform.
const DefaultTrackedTraderCount = 50

// DefaultRefreshInterval is how often the tracked-trader set is refreshed.
const DefaultRefreshInterval = 60 * time.Second

// ScoreLookup resolves a trader's current unified TruthScore tier, used to
// refresh the tracked-trader working set. Implemented by the store-backed
// leaderboard in production; a fake in tests.
type ScoreLookup interface {
	TopTraders(ctx context.Context, platformID platform.Platform, n int) ([]model.TruthScore, error)
}

// roundState accumulates contributing bets for one (platform, epoch) round
// until lock.
type roundState struct {
	platformID platform.Platform
	epoch      int64
	bets       []model.SignalBet
	locked     bool
}

// Aggregator tracks per-platform high-tier traders and folds their bets
// into a rolling per-round smart-money signal.
type Aggregator struct {
	mu       sync.Mutex
	bus      *bus.Bus
	scores   ScoreLookup
	tracked  map[platform.Platform]map[string]model.Tier // trader -> tier, refreshed on cadence
	rounds   map[string]*roundState                      // key: platform|epoch
	trackedN int
}

func roundKey(platformID platform.Platform, epoch int64) string {
	return fmt.Sprintf("%s|%d", platformID, epoch)
}

// New wires the aggregator to the event bus. Call Start to begin the
// tracked-trader refresh loop and bet subscription.
func New(b *bus.Bus, scores ScoreLookup) *Aggregator {
	return &Aggregator{
		bus:      b,
		scores:   scores,
		tracked:  make(map[platform.Platform]map[string]model.Tier),
		rounds:   make(map[string]*roundState),
		trackedN: DefaultTrackedTraderCount,
	}
}

// Start launches the tracked-trader refresh loop for the given platforms
// and subscribes to BET_DETECTED / ROUND_LOCKED / ROUND_ENDED. Returns a
// disposer that stops both.
func (a *Aggregator) Start(ctx context.Context, platforms []platform.Platform) bus.Disposer {
	refreshCtx, cancel := context.WithCancel(ctx)
	go a.refreshLoop(refreshCtx, platforms)

	disposeBet := a.bus.Subscribe(bus.EventBetDetected, a.onBetDetected)
	disposeLock := a.bus.Subscribe(bus.EventRoundLocked, a.onRoundLocked)
	disposeEnd := a.bus.Subscribe(bus.EventRoundEnded, a.onRoundEnded)

	return func() {
		cancel()
		disposeBet()
		disposeLock()
		disposeEnd()
	}
}

func (a *Aggregator) refreshLoop(ctx context.Context, platforms []platform.Platform) {
	ticker := time.NewTicker(DefaultRefreshInterval)
	defer ticker.Stop()

	a.refreshTracked(ctx, platforms)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshTracked(ctx, platforms)
		}
	}
}

func (a *Aggregator) refreshTracked(ctx context.Context, platforms []platform.Platform) {
	for _, p := range platforms {
		top, err := a.scores.TopTraders(ctx, p, a.trackedN)
		if err != nil {
			continue
		}
		set := make(map[string]model.Tier, len(top))
		for _, s := range top {
			set[s.Trader] = s.Tier
		}
		a.mu.Lock()
		a.tracked[p] = set
		a.mu.Unlock()
	}
}

// RoundEventPayload is carried on ROUND_LOCKED / ROUND_ENDED events.
type RoundEventPayload struct {
	Platform platform.Platform
	Epoch    int64
	BullWins *bool // set only on ROUND_ENDED
}

func (a *Aggregator) onBetDetected(ctx context.Context, ev bus.Event) {
	bet, ok := ev.Payload.(model.Bet)
	if !ok {
		return
	}

	a.mu.Lock()
	tier, tracked := a.tracked[bet.Platform][bet.Trader]
	a.mu.Unlock()
	if !tracked {
		return
	}

	epoch := parseEpoch(bet.MarketID)
	key := roundKey(bet.Platform, epoch)

	a.mu.Lock()
	state, ok := a.rounds[key]
	if !ok {
		state = &roundState{platformID: bet.Platform, epoch: epoch}
		a.rounds[key] = state
	}
	if state.locked {
		a.mu.Unlock()
		return
	}
	state.bets = append(state.bets, model.SignalBet{
		Trader: bet.Trader,
		Tier:   tier,
		Side:   bet.Direction,
		Amount: bet.Amount,
	})
	signal := computeSignal(state)
	a.mu.Unlock()

	a.bus.Emit(ctx, bus.EventSignalGenerated, signal)
}

func (a *Aggregator) onRoundLocked(ctx context.Context, ev bus.Event) {
	payload, ok := ev.Payload.(RoundEventPayload)
	if !ok {
		return
	}
	key := roundKey(payload.Platform, payload.Epoch)

	a.mu.Lock()
	state, ok := a.rounds[key]
	if ok {
		state.locked = true
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	// The final pre-lock signal was already persisted by the last
	// SIGNAL_GENERATED subscriber upsert; locking only stops further bets
	// from mutating the consensus.
}

func (a *Aggregator) onRoundEnded(ctx context.Context, ev bus.Event) {
	payload, ok := ev.Payload.(RoundEventPayload)
	if !ok {
		return
	}
	key := roundKey(payload.Platform, payload.Epoch)

	a.mu.Lock()
	delete(a.rounds, key)
	a.mu.Unlock()
}

// computeSignal folds the round's contributing bets into a consensus,
// confidence, and strength. Called with a.mu held.
func computeSignal(state *roundState) model.SmartMoneySignal {
	var totalWeight, bullWeight float64
	var diamondCount, platinumCount int
	traderSet := make(map[string]struct{})
	totalVolume := model.Zero

	bets := make([]model.SignalBet, len(state.bets))
	copy(bets, state.bets)

	for i, b := range bets {
		w := model.TierWeight(b.Tier) * math.Log1p(b.Amount.Float64())
		bets[i].Weight = w
		totalWeight += w
		totalVolume = totalVolume.Add(b.Amount)
		if b.Side == model.DirectionBull {
			bullWeight += w
		}
		if _, seen := traderSet[b.Trader]; !seen {
			traderSet[b.Trader] = struct{}{}
			switch b.Tier {
			case model.TierDiamond:
				diamondCount++
			case model.TierPlatinum:
				platinumCount++
			}
		}
	}

	var weightedBullPercent float64
	if totalWeight > 0 {
		weightedBullPercent = bullWeight / totalWeight * 100
	}

	participants := len(traderSet)
	confidence := computeConfidence(weightedBullPercent, totalWeight, participants)

	var strength model.Strength
	switch {
	case confidence >= 70 && participants >= 5 && (diamondCount >= 2 || platinumCount >= 3):
		strength = model.StrengthStrong
	case confidence >= 50 && participants >= 3:
		strength = model.StrengthModerate
	default:
		strength = model.StrengthWeak
	}

	var consensus model.Consensus
	switch {
	case weightedBullPercent > 60:
		consensus = model.ConsensusBull
	case weightedBullPercent < 40:
		consensus = model.ConsensusBear
	default:
		consensus = model.ConsensusNeutral
	}

	sort.Slice(bets, func(i, j int) bool { return bets[i].Trader < bets[j].Trader })

	agreementPercent := math.Max(weightedBullPercent, 100-weightedBullPercent)

	return model.SmartMoneySignal{
		Platform:                  state.platformID,
		Epoch:                     state.epoch,
		Consensus:                 consensus,
		Strength:                  strength,
		Confidence:                confidence,
		WeightedBullPercent:       weightedBullPercent,
		ParticipatingTraders:      participants,
		DiamondTraderCount:        diamondCount,
		PlatinumTraderCount:       platinumCount,
		TotalVolume:               totalVolume,
		TopTraderAgreementPercent: agreementPercent,
		ContributingBets:          bets,
		UpdatedAt:                 time.Now(),
	}
}

// computeConfidence folds deviation from 50%, total weight, and participant
// count into a [0,100] score: up to 60 points for deviation, 30 for
// log-scaled weight, 10 for participants.
func computeConfidence(weightedBullPercent, totalWeight float64, participants int) float64 {
	deviation := math.Abs(weightedBullPercent-50) / 50 // 0..1
	deviationScore := deviation * 60

	weightScore := math.Min(30, math.Log1p(totalWeight)*5)

	participantScore := math.Min(10, float64(participants))

	confidence := deviationScore + weightScore + participantScore
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func parseEpoch(marketID string) int64 {
	var epoch int64
	for _, r := range marketID {
		if r < '0' || r > '9' {
			return 0
		}
		epoch = epoch*10 + int64(r-'0')
	}
	return epoch
}
