// Package antigaming implements the anti-gaming detector: wash trading,
// Sybil clusters, statistical anomalies, and collusion.
package antigaming

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
)

// DefaultScanInterval is the periodic full-scan cadence.
const DefaultScanInterval = 5 * time.Minute

// WashThreshold is the minimum count of both-sides-same-round occurrences
// for a wallet before a CRITICAL wash-trading alert fires.
const WashThreshold = 3

// SybilMinWallets is the minimum distinct-wallet count in a bucket before a
// Sybil cluster alert fires.
const SybilMinWallets = 3

// MinResolvedBetsForAnomaly gates the statistical-anomaly z-test.
const MinResolvedBetsForAnomaly = 50

// AnomalyZThreshold is the one-tailed z-score cutoff, p ~ 0.0005.
const AnomalyZThreshold = 3.29

// CollusionMinCoOccurrence and CollusionRatio gate the pairwise collusion
// check.
const CollusionMinCoOccurrence = 20
const CollusionRatio = 0.8

// DuplicateSuppressionWindow is how far back an existing unresolved alert
// suppresses a new one of the same type touching the same wallet.
const DuplicateSuppressionWindow = 24 * time.Hour

// Store persists alerts and answers the duplicate-suppression query.
type Store interface {
	HasRecentUnresolvedAlert(ctx context.Context, typ model.AlertType, wallets []string, within time.Duration) (bool, error)
	CreateAlert(ctx context.Context, alert model.GamingAlert) error
}

type roundBet struct {
	wallet    string
	round     string
	side      model.Direction
	amount    float64
	timestamp time.Time
	won       *bool
}

// Detector accumulates a bounded window of observed bets and scans it
// periodically, plus a per-bet fast path for wash trading.
type Detector struct {
	mu    sync.Mutex
	bus   *bus.Bus
	store Store

	bets      []roundBet // bounded ring, most recent last
	maxWindow int
}

// New wires a Detector to the bus and store. maxWindow bounds the
// in-memory bet history the periodic scans run over.
func New(b *bus.Bus, store Store, maxWindow int) *Detector {
	if maxWindow <= 0 {
		maxWindow = 50_000
	}
	return &Detector{bus: b, store: store, maxWindow: maxWindow}
}

// RoundOf derives the bet's round key from its platform and market id, the
// unit wash trading and collusion operate over.
func RoundOf(b model.Bet) string {
	return fmt.Sprintf("%s|%s", b.Platform, b.MarketID)
}

// Start subscribes the fast path to BET_DETECTED and launches the periodic
// full scan. Returns a disposer.
func (d *Detector) Start(ctx context.Context) bus.Disposer {
	scanCtx, cancel := context.WithCancel(ctx)
	disposeBet := d.bus.Subscribe(bus.EventBetDetected, d.onBetDetected)

	go func() {
		ticker := time.NewTicker(DefaultScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				d.Scan(scanCtx)
			}
		}
	}()

	return func() {
		cancel()
		disposeBet()
	}
}

// onBetDetected is the per-bet fast path: it records the bet and
// immediately re-checks wash trading for that wallet, the cheapest of the
// four checks to run per-event.
func (d *Detector) onBetDetected(ctx context.Context, ev bus.Event) {
	bet, ok := ev.Payload.(model.Bet)
	if !ok {
		return
	}

	d.mu.Lock()
	d.record(bet)
	wallet := bet.Trader
	washRounds := d.washRoundsFor(wallet)
	d.mu.Unlock()

	if washRounds >= WashThreshold {
		d.raise(ctx, model.AlertWashTrading, model.SeverityCritical, []string{wallet},
			map[string]interface{}{"washRounds": washRounds}, "freeze wallet pending review")
	}
}

func (d *Detector) record(bet model.Bet) {
	d.bets = append(d.bets, roundBet{
		wallet: bet.Trader, round: RoundOf(bet), side: bet.Direction,
		amount: bet.Amount.Float64(), timestamp: bet.Timestamp, won: bet.Won,
	})
	if len(d.bets) > d.maxWindow {
		d.bets = d.bets[len(d.bets)-d.maxWindow:]
	}
}

// washRoundsFor counts the rounds in which wallet bet both bull and bear.
// Must be called with d.mu held.
func (d *Detector) washRoundsFor(wallet string) int {
	sides := make(map[string]map[model.Direction]struct{})
	for _, b := range d.bets {
		if b.wallet != wallet {
			continue
		}
		s, ok := sides[b.round]
		if !ok {
			s = make(map[model.Direction]struct{})
			sides[b.round] = s
		}
		s[b.side] = struct{}{}
	}
	count := 0
	for _, s := range sides {
		if len(s) >= 2 {
			count++
		}
	}
	return count
}

// Scan runs the full periodic pass: wash trading (all wallets), Sybil
// clustering, statistical anomaly, and collusion.
func (d *Detector) Scan(ctx context.Context) {
	d.mu.Lock()
	bets := make([]roundBet, len(d.bets))
	copy(bets, d.bets)
	d.mu.Unlock()

	d.scanWash(ctx, bets)
	d.scanSybil(ctx, bets)
	d.scanAnomaly(ctx, bets)
	d.scanCollusion(ctx, bets)
}

func (d *Detector) scanWash(ctx context.Context, bets []roundBet) {
	byWallet := make(map[string]map[string]map[model.Direction]struct{})
	for _, b := range bets {
		rounds, ok := byWallet[b.wallet]
		if !ok {
			rounds = make(map[string]map[model.Direction]struct{})
			byWallet[b.wallet] = rounds
		}
		sides, ok := rounds[b.round]
		if !ok {
			sides = make(map[model.Direction]struct{})
			rounds[b.round] = sides
		}
		sides[b.side] = struct{}{}
	}
	for wallet, rounds := range byWallet {
		washCount := 0
		for _, sides := range rounds {
			if len(sides) >= 2 {
				washCount++
			}
		}
		if washCount >= WashThreshold {
			d.raise(ctx, model.AlertWashTrading, model.SeverityCritical, []string{wallet},
				map[string]interface{}{"washRounds": washCount}, "freeze wallet pending review")
		}
	}
}

// scanSybil buckets bets by (round, side, amount-to-0.1-native-unit,
// timestamp/5s) and flags any bucket touched by enough distinct wallets.
func (d *Detector) scanSybil(ctx context.Context, bets []roundBet) {
	buckets := make(map[string]map[string]struct{})
	for _, b := range bets {
		amountBucket := math.Round(b.amount / 0.1)
		timeBucket := b.timestamp.Unix() / 5
		key := fmt.Sprintf("%s|%s|%d|%d", b.round, b.side, int64(amountBucket), timeBucket)
		wallets, ok := buckets[key]
		if !ok {
			wallets = make(map[string]struct{})
			buckets[key] = wallets
		}
		wallets[b.wallet] = struct{}{}
	}
	for _, wallets := range buckets {
		if len(wallets) < SybilMinWallets {
			continue
		}
		list := make([]string, 0, len(wallets))
		for w := range wallets {
			list = append(list, w)
		}
		sort.Strings(list)
		d.raise(ctx, model.AlertSybilCluster, model.SeverityWarning, list,
			map[string]interface{}{"clusterSize": len(list)}, "review wallet cluster for shared control")
	}
}

// scanAnomaly computes each wallet's z-score of observed win rate against
// the 50% random baseline once it has at least MinResolvedBetsForAnomaly
// resolved bets.
func (d *Detector) scanAnomaly(ctx context.Context, bets []roundBet) {
	type tally struct{ wins, total int }
	byWallet := make(map[string]*tally)
	for _, b := range bets {
		if b.won == nil {
			continue
		}
		t, ok := byWallet[b.wallet]
		if !ok {
			t = &tally{}
			byWallet[b.wallet] = t
		}
		t.total++
		if *b.won {
			t.wins++
		}
	}
	for wallet, t := range byWallet {
		if t.total < MinResolvedBetsForAnomaly {
			continue
		}
		p := float64(t.wins) / float64(t.total)
		z := (p - 0.5) / math.Sqrt(0.25/float64(t.total))
		if z <= AnomalyZThreshold {
			continue
		}
		prob := oneTailedNormalTail(z)
		d.raise(ctx, model.AlertStatisticalAnomaly, model.SeverityInfo, []string{wallet},
			map[string]interface{}{"zScore": z, "winRate": p, "resolvedBets": t.total, "approxProbability": prob},
			"monitor for continued deviation from expected win rate")
	}
}

// scanCollusion flags wallet pairs that co-occur in the same round in an
// implausibly large fraction of their joint rounds.
func (d *Detector) scanCollusion(ctx context.Context, bets []roundBet) {
	roundsByWallet := make(map[string]map[string]struct{})
	for _, b := range bets {
		rounds, ok := roundsByWallet[b.wallet]
		if !ok {
			rounds = make(map[string]struct{})
			roundsByWallet[b.wallet] = rounds
		}
		rounds[b.round] = struct{}{}
	}

	wallets := make([]string, 0, len(roundsByWallet))
	for w := range roundsByWallet {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	for i := 0; i < len(wallets); i++ {
		for j := i + 1; j < len(wallets); j++ {
			a, b := wallets[i], wallets[j]
			coOccurrence := 0
			for round := range roundsByWallet[a] {
				if _, ok := roundsByWallet[b][round]; ok {
					coOccurrence++
				}
			}
			if coOccurrence < CollusionMinCoOccurrence {
				continue
			}
			total := unionSize(roundsByWallet[a], roundsByWallet[b])
			if total == 0 || float64(coOccurrence)/float64(total) <= CollusionRatio {
				continue
			}
			d.raise(ctx, model.AlertCollusion, model.SeverityWarning, []string{a, b},
				map[string]interface{}{"coOccurrence": coOccurrence, "totalRounds": total},
				"review wallet pair for coordinated betting")
		}
	}
}

func unionSize(a, b map[string]struct{}) int {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	return len(seen)
}

// oneTailedNormalTail approximates P(Z > z) for the standard normal via
// the complementary error function, used to report an approximate
// probability alongside the raw z-score.
func oneTailedNormalTail(z float64) float64 {
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

// raise drops the alert when an unresolved one of the same type touching
// any implicated wallet exists within the suppression window, then
// persists and emits.
func (d *Detector) raise(ctx context.Context, typ model.AlertType, sev model.Severity, wallets []string, evidence map[string]interface{}, action string) {
	if d.store != nil {
		dup, err := d.store.HasRecentUnresolvedAlert(ctx, typ, wallets, DuplicateSuppressionWindow)
		if err == nil && dup {
			return
		}
	}

	alert, err := model.NewGamingAlert(uuid.NewString(), typ, sev, wallets, evidence, action, time.Now())
	if err != nil {
		return
	}

	if d.store != nil {
		if err := d.store.CreateAlert(ctx, *alert); err != nil {
			return
		}
	}
	d.bus.Emit(ctx, bus.EventAlertCreated, *alert)
}
