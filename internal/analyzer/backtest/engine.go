// Package backtest implements the backtesting engine: deterministic replay
// of a leader's historical bets under a copy-trading policy.
package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// DefaultCacheTTL is how long a cached backtest result is reused for an
// exact settings match.
const DefaultCacheTTL = 24 * time.Hour

// BetSource fetches a leader's historical bets in a date range.
type BetSource interface {
	GetTraderBetsInRange(ctx context.Context, trader string, platformID platform.Platform, start, end time.Time) ([]model.Bet, error)
}

// ResolutionSource resolves a bet's round outcome; bets whose round hasn't
// resolved are skipped.
type ResolutionSource interface {
	GetMarketOutcome(ctx context.Context, platformID platform.Platform, marketID string) (won *bool, resolved bool, err error)
}

// Cache stores and retrieves backtest results keyed by (leader, range,
// settingsHash).
type Cache interface {
	Get(ctx context.Context, leader string, start, end time.Time, settingsHash string) (model.BacktestResult, bool, error)
	Put(ctx context.Context, result model.BacktestResult, ttl time.Duration) error
}

// Engine replays a leader's bet history under a copy-trading policy.
type Engine struct {
	bets          BetSource
	resolver      ResolutionSource
	cache         Cache
	roundsPerYear float64
}

// New wires an Engine. roundsPerYear parameterizes Sharpe/Sortino
// annualization; the default suits 5-minute rounds (288/day x 365).
func New(bets BetSource, resolver ResolutionSource, cache Cache, roundsPerYear float64) *Engine {
	if roundsPerYear <= 0 {
		roundsPerYear = 288 * 365
	}
	return &Engine{bets: bets, resolver: resolver, cache: cache, roundsPerYear: roundsPerYear}
}

// SettingsHash derives the cache key's settings component deterministically
// from a BacktestSettings value, so identical settings within the TTL hit
// the cache byte-for-byte.
func SettingsHash(s model.BacktestSettings) string {
	h := sha256.New()
	stopLoss := "none"
	if s.StopLossPercent != nil {
		stopLoss = fmt.Sprintf("%.6f", *s.StopLossPercent)
	}
	fmt.Fprintf(h, "%s|%d|%.6f|%s|%t|%s",
		s.Leader, s.InitialCapital.Raw(), s.AllocationPercent, s.MaxBetSize.Raw(), s.Compounding, stopLoss)
	return hex.EncodeToString(h.Sum(nil))
}

// Run replays settings against platformID's round history, returning a
// cached result on an exact within-TTL match.
func (e *Engine) Run(ctx context.Context, platformID platform.Platform, s model.BacktestSettings) (model.BacktestResult, error) {
	hash := SettingsHash(s)

	if e.cache != nil {
		if cached, ok, err := e.cache.Get(ctx, s.Leader, s.Start, s.End, hash); err == nil && ok {
			return cached, nil
		}
	}

	bets, err := e.bets.GetTraderBetsInRange(ctx, s.Leader, platformID, s.Start, s.End)
	if err != nil {
		return model.BacktestResult{}, fmt.Errorf("backtest: fetch leader bets: %w", err)
	}
	sort.Slice(bets, func(i, j int) bool { return bets[i].Timestamp.Before(bets[j].Timestamp) })

	info, _ := platform.Lookup(platformID)
	result := e.simulate(ctx, platformID, info, s, bets)
	result.SettingsHash = hash
	result.ComputedAt = time.Now()

	if e.cache != nil {
		_ = e.cache.Put(ctx, result, DefaultCacheTTL)
	}
	return result, nil
}

// simulate fetches each bet's resolution, sizes the copy amount, applies
// the platform's net payout on a win, tracks peak-to-trough drawdown, and
// halts in place if StopLossPercent is breached.
func (e *Engine) simulate(ctx context.Context, platformID platform.Platform, info platform.Info, s model.BacktestSettings, bets []model.Bet) model.BacktestResult {
	portfolio := s.InitialCapital.Float64()
	initial := portfolio
	peak := portfolio

	var trades []model.BacktestTrade
	halted := false

	for _, b := range bets {
		if halted {
			break
		}
		won, resolved, err := e.resolver.GetMarketOutcome(ctx, platformID, b.MarketID)
		if err != nil || !resolved {
			continue // unresolved round: skipped
		}

		// The copy tracks the leader's actual stake; the allocation percent
		// (of the running portfolio when compounding, of initial capital
		// otherwise) is the per-trade budget that bounds it, alongside
		// MaxBetSize and whatever portfolio is left.
		base := initial
		if s.Compounding {
			base = portfolio
		}
		budget := base * s.AllocationPercent / 100
		copyAmount := b.Amount.Float64()
		if copyAmount > budget {
			copyAmount = budget
		}
		if maxBet := s.MaxBetSize.Float64(); maxBet > 0 && copyAmount > maxBet {
			copyAmount = maxBet
		}
		if copyAmount > portfolio {
			copyAmount = portfolio
		}
		if copyAmount <= 0 {
			continue
		}

		var pnl float64
		if won != nil && *won {
			pnl = copyAmount * (info.NetPayout() - 1)
		} else {
			pnl = -copyAmount
		}
		portfolio += pnl

		trades = append(trades, model.BacktestTrade{
			SourceBetID: b.ID, MarketID: b.MarketID, Timestamp: b.Timestamp,
			Direction: b.Direction, CopyAmount: model.FromFloat(copyAmount),
			Won: won != nil && *won, PnL: model.FromFloat(pnl), PortfolioAfter: model.FromFloat(portfolio),
		})

		if portfolio > peak {
			peak = portfolio
		}
		if s.StopLossPercent != nil && peak > 0 {
			drawdown := (peak - portfolio) / peak * 100
			if drawdown >= *s.StopLossPercent {
				halted = true
			}
		}
	}

	metrics, monthly, best, worst := computeMetrics(initial, trades, e.roundsPerYear)

	return model.BacktestResult{
		Settings: s, Trades: trades, Metrics: metrics,
		MonthlyReturns: monthly, BestMonth: best, WorstMonth: worst,
		HaltedByStopLoss: halted,
	}
}

// computeMetrics aggregates totals, monthly rollups, and risk-adjusted
// metrics over the replayed trade log.
func computeMetrics(initial float64, trades []model.BacktestTrade, roundsPerYear float64) (model.BacktestMetrics, []model.MonthlyReturn, *model.MonthlyReturn, *model.MonthlyReturn) {
	m := model.BacktestMetrics{TotalTrades: len(trades)}
	if len(trades) == 0 || initial == 0 {
		return m, nil, nil, nil
	}

	var wins, losses int
	var grossWin, grossLoss float64
	var returns []float64
	peak := initial
	maxDD := 0.0
	var maxDDAt time.Time
	portfolio := initial

	monthlyPnL := make(map[string]float64)
	monthlyStart := make(map[string]float64)

	for _, t := range trades {
		pnl := t.PnL.Float64()
		returns = append(returns, pnl/portfolioOrInitial(portfolio, initial))
		portfolio = t.PortfolioAfter.Float64()

		if t.Won {
			wins++
			grossWin += pnl
		} else {
			losses++
			grossLoss += -pnl
		}

		if portfolio > peak {
			peak = portfolio
		}
		if peak > 0 {
			dd := (peak - portfolio) / peak * 100
			if dd > maxDD {
				maxDD = dd
				maxDDAt = t.Timestamp
			}
		}

		month := t.Timestamp.Format("2006-01")
		if _, ok := monthlyStart[month]; !ok {
			monthlyStart[month] = portfolio - pnl
		}
		monthlyPnL[month] += pnl
	}

	m.TotalReturnPercent = (portfolio - initial) / initial * 100
	days := trades[len(trades)-1].Timestamp.Sub(trades[0].Timestamp).Hours() / 24
	if days < 1 {
		days = 1
	}
	m.AnnualizedReturnPercent = m.TotalReturnPercent * (365 / days)
	m.MaxDrawdownPercent = maxDD
	m.MaxDrawdownAt = maxDDAt
	m.WinRate = float64(wins) / float64(len(trades)) * 100

	if losses > 0 && grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	m.Expectancy = (grossWin - grossLoss) / float64(len(trades))

	mean, stddev := meanStdDev(returns)
	downside := downsideStdDev(returns)
	annualizer := math.Sqrt(roundsPerYear)
	if stddev > 0 {
		m.Sharpe = mean / stddev * annualizer
	}
	if downside > 0 {
		m.Sortino = mean / downside * annualizer
	}
	if maxDD > 0 {
		m.Calmar = m.AnnualizedReturnPercent / maxDD
	}

	var monthly []model.MonthlyReturn
	for month, pnl := range monthlyPnL {
		start := monthlyStart[month]
		var pct float64
		if start != 0 {
			pct = pnl / start * 100
		}
		monthly = append(monthly, model.MonthlyReturn{Month: month, ReturnPercent: pct})
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month < monthly[j].Month })

	var best, worst *model.MonthlyReturn
	for i := range monthly {
		if best == nil || monthly[i].ReturnPercent > best.ReturnPercent {
			best = &monthly[i]
		}
		if worst == nil || monthly[i].ReturnPercent < worst.ReturnPercent {
			worst = &monthly[i]
		}
	}

	return m, monthly, best, worst
}

func portfolioOrInitial(portfolio, initial float64) float64 {
	if portfolio == 0 {
		return initial
	}
	return portfolio
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	if len(xs) > 1 {
		variance /= float64(len(xs) - 1)
	}
	return mean, math.Sqrt(variance)
}

// downsideStdDev computes the standard deviation of only the negative
// returns, the denominator Sortino uses in place of total volatility.
func downsideStdDev(xs []float64) float64 {
	var negatives []float64
	for _, x := range xs {
		if x < 0 {
			negatives = append(negatives, x)
		}
	}
	if len(negatives) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range negatives {
		sumSq += x * x
	}
	return math.Sqrt(sumSq / float64(len(negatives)))
}
