// Package trend implements the trend detector: it surfaces topics that
// appear on many platforms or accumulate unusual volume velocity.
package trend

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// DefaultCycleInterval is how often the detector re-scans open markets.
const DefaultCycleInterval = 2 * time.Minute

// MarketSource fetches currently open markets for one platform. A failing
// platform reduces coverage but never aborts the cycle.
type MarketSource interface {
	GetActiveMarkets(ctx context.Context, p platform.Platform, limit int) ([]model.Market, error)
}

// Store persists the top-N topics by score.
type Store interface {
	UpsertTopic(ctx context.Context, t model.TrendingTopic) error
}

const perPlatformFetchLimit = 200
const topPersisted = 100

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "will": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "does": {}, "who": {}, "what": {}, "when": {}, "over": {}, "than": {},
	"win": {}, "wins": {}, "end": {}, "ends": {}, "before": {}, "after": {}, "market": {},
	"above": {}, "below": {}, "price": {}, "close": {}, "open": {}, "yes": {}, "not": {},
}

// aliasTable collapses variant spellings of the same entity to one
// canonical topic.
var aliasTable = map[string]string{
	"btc":        "bitcoin",
	"xbt":        "bitcoin",
	"donald":     "trump",
	"djt":        "trump",
	"potus":      "trump",
	"presidency": "election",
	"pres":       "election",
	"eth":        "ethereum",
}

var quotedPhrase = regexp.MustCompile(`"([^"]{3,40})"`)
var capitalizedEntity = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)+)\b`)
var wordPattern = regexp.MustCompile(`[a-zA-Z0-9']+`)

// candidateTopics extracts and normalizes candidate topics from a market
// title: quoted phrases, capitalized multi-word entities, and individual
// non-stop-word tokens.
func candidateTopics(title string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		norm := normalizeToken(raw)
		if norm == "" {
			return
		}
		if _, ok := seen[norm]; ok {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	for _, m := range quotedPhrase.FindAllStringSubmatch(title, -1) {
		add(m[1])
	}
	for _, m := range capitalizedEntity.FindAllString(title, -1) {
		add(m)
	}
	for _, w := range wordPattern.FindAllString(strings.ToLower(title), -1) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		add(w)
	}
	return out
}

// normalizeToken lowercases, strips possessives/naive plurals, resolves
// aliases, and drops tokens that are still too short or purely numeric.
// The alias table is consulted before the plural strip so s-final keys like
// "potus" resolve intact, and again after it so plural variants of a keyed
// entity still collapse.
func normalizeToken(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "'s")
	if alias, ok := aliasTable[s]; ok {
		s = alias
	} else {
		s = strings.TrimSuffix(s, "s")
		if alias, ok := aliasTable[s]; ok {
			s = alias
		}
	}
	if len(s) <= 2 {
		return ""
	}
	if isNumeric(s) {
		return ""
	}
	return s
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type cluster struct {
	topic      string
	category   platform.Category
	markets    []model.Market
	byPlatform map[platform.Platform]*model.PlatformPresence
}

// Detector runs trend-detection cycles and emits TREND_DETECTED /
// TREND_UPDATED on the bus.
type Detector struct {
	bus    *bus.Bus
	source MarketSource
	store  Store

	prevVolume map[string]float64 // topic -> volume observed last cycle
	prevScore  map[string]float64
	lastCycle  time.Time
}

// New wires a Detector to the bus, a market source, and a store.
func New(b *bus.Bus, source MarketSource, store Store) *Detector {
	return &Detector{
		bus:        b,
		source:     source,
		store:      store,
		prevVolume: make(map[string]float64),
		prevScore:  make(map[string]float64),
	}
}

// Run executes detection cycles on DefaultCycleInterval until ctx is
// cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(DefaultCycleInterval)
	defer ticker.Stop()

	d.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single detection cycle. Exported so tests and the
// CLI's one-shot `score` command can drive it directly.
func (d *Detector) RunOnce(ctx context.Context) []model.TrendingTopic {
	now := time.Now()
	minutesElapsed := 2.0
	if !d.lastCycle.IsZero() {
		minutesElapsed = math.Max(0.5, now.Sub(d.lastCycle).Minutes())
	}
	d.lastCycle = now

	markets := d.fetchAll(ctx)
	clusters := d.buildClusters(markets)

	topics := make([]model.TrendingTopic, 0, len(clusters))
	for _, c := range clusters {
		totalVolume := model.Zero
		totalMarkets := 0
		presences := make([]model.PlatformPresence, 0, len(c.byPlatform))
		for _, p := range c.byPlatform {
			totalVolume = totalVolume.Add(p.Volume)
			totalMarkets += p.MarketCount
			presences = append(presences, *p)
		}
		sort.Slice(presences, func(i, j int) bool { return presences[i].Platform < presences[j].Platform })

		// Discard clusters with fewer than 2 markets or less than $100
		// total volume.
		if totalMarkets < 2 || totalVolume.Float64() < 100 {
			continue
		}

		volume := totalVolume.Float64()
		prevVolume := d.prevVolume[c.topic]
		velocity := (volume - prevVolume) / minutesElapsed

		score := scoreCluster(volume, totalMarkets, len(presences), velocity)
		prevScore, hadPrev := d.prevScore[c.topic]

		topic := model.TrendingTopic{
			NormalizedTopic: c.topic,
			Category:        c.category,
			Score:           score,
			Velocity:        velocity,
			TotalVolume:     totalVolume,
			TotalMarkets:    totalMarkets,
			Platforms:       presences,
			LastUpdated:     now,
		}
		if !hadPrev {
			topic.FirstSeenAt = now
			d.bus.Emit(ctx, bus.EventTrendDetected, topic)
		} else if score > 1.1*prevScore {
			d.bus.Emit(ctx, bus.EventTrendUpdated, topic)
		}

		d.prevVolume[c.topic] = volume
		d.prevScore[c.topic] = score
		topics = append(topics, topic)
	}

	sort.Slice(topics, func(i, j int) bool { return topics[i].Score > topics[j].Score })
	if len(topics) > topPersisted {
		topics = topics[:topPersisted]
	}
	if d.store != nil {
		for _, t := range topics {
			_ = d.store.UpsertTopic(ctx, t)
		}
	}
	return topics
}

// fetchAll fans out GetActiveMarkets across every registered platform with
// partial-failure tolerance: a platform timing out or erroring reduces
// coverage but never aborts the cycle.
func (d *Detector) fetchAll(ctx context.Context) []model.Market {
	platforms := platform.All()
	results := make([][]model.Market, len(platforms))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range platforms {
		i, p := i, p
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			ms, err := d.source.GetActiveMarkets(cctx, p, perPlatformFetchLimit)
			if err != nil {
				return nil // tolerated: partial coverage, not aborted
			}
			results[i] = ms
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Market
	for _, ms := range results {
		all = append(all, ms...)
	}
	return all
}

// buildClusters groups markets by every normalized topic their title
// yields. A market can belong to more than one cluster if its title yields
// more than one candidate topic.
func (d *Detector) buildClusters(markets []model.Market) map[string]*cluster {
	clusters := make(map[string]*cluster)
	for _, m := range markets {
		info, _ := platform.Lookup(m.Platform)
		for _, topic := range candidateTopics(m.Title) {
			c, ok := clusters[topic]
			if !ok {
				c = &cluster{topic: topic, category: info.Category, byPlatform: make(map[platform.Platform]*model.PlatformPresence)}
				clusters[topic] = c
			}
			pres, ok := c.byPlatform[m.Platform]
			if !ok {
				pres = &model.PlatformPresence{Platform: m.Platform}
				c.byPlatform[m.Platform] = pres
			}
			pres.MarketCount++
			// Pool-style venues report per-side amounts; REST venues often
			// report only a total. Prefer the larger of the two readings.
			vol := m.BullAmount.Add(m.BearAmount)
			if m.TotalAmount.Cmp(vol) > 0 {
				vol = m.TotalAmount
			}
			pres.Volume = pres.Volume.Add(vol)
			if len(pres.TopMarkets) < 5 {
				pres.TopMarkets = append(pres.TopMarkets, m.ID)
			}
			c.markets = append(c.markets, m)
		}
	}
	return clusters
}

// scoreCluster sums capped volume, market-count, platform-count, and
// velocity components, rounded to 2 decimals.
func scoreCluster(totalVolume float64, markets, platforms int, velocity float64) float64 {
	volumeScore := math.Min(totalVolume/10_000, 40)
	marketScore := math.Min(float64(markets)*4, 20)
	platformScore := math.Min(float64(platforms)*5, 25)
	velocityScore := math.Min(math.Max(velocity, 0)/100, 15)
	score := volumeScore + marketScore + platformScore + velocityScore
	return math.Round(score*100) / 100
}
