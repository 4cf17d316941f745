package model

import "time"

// BacktestSettings is the user-supplied copy-trading policy a backtest
// replays a leader's history under.
type BacktestSettings struct {
	Leader            string    `json:"leader"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	InitialCapital    Amount    `json:"initialCapital"`
	AllocationPercent float64   `json:"allocationPercent"`
	MaxBetSize        Amount    `json:"maxBetSize"`
	Compounding       bool      `json:"compounding"`
	StopLossPercent   *float64  `json:"stopLossPercent,omitempty"`
}

// BacktestTrade is one simulated copy of a leader bet.
type BacktestTrade struct {
	SourceBetID    string    `json:"sourceBetId"`
	MarketID       string    `json:"marketId"`
	Timestamp      time.Time `json:"timestamp"`
	Direction      Direction `json:"direction"`
	CopyAmount     Amount    `json:"copyAmount"`
	Won            bool      `json:"won"`
	PnL            Amount    `json:"pnl"`
	PortfolioAfter Amount    `json:"portfolioAfter"`
}

// MonthlyReturn is one month's aggregate return in a backtest.
type MonthlyReturn struct {
	Month         string  `json:"month"` // "2026-01"
	ReturnPercent float64 `json:"returnPercent"`
}

// BacktestMetrics holds the risk-adjusted aggregate metrics computed after
// replay.
type BacktestMetrics struct {
	TotalReturnPercent      float64   `json:"totalReturnPercent"`
	AnnualizedReturnPercent float64   `json:"annualizedReturnPercent"`
	MaxDrawdownPercent      float64   `json:"maxDrawdownPercent"`
	MaxDrawdownAt           time.Time `json:"maxDrawdownAt"`
	Sharpe                  float64   `json:"sharpe"`
	Sortino                 float64   `json:"sortino"`
	Calmar                  float64   `json:"calmar"`
	ProfitFactor            float64   `json:"profitFactor"`
	Expectancy              float64   `json:"expectancy"`
	WinRate                 float64   `json:"winRate"`
	TotalTrades             int       `json:"totalTrades"`
}

// BacktestResult is the full output of one backtest run. Natural key for
// the result cache: (Leader, Start, End, SettingsHash).
type BacktestResult struct {
	Settings         BacktestSettings `json:"settings"`
	SettingsHash     string           `json:"settingsHash"`
	Trades           []BacktestTrade  `json:"trades"`
	Metrics          BacktestMetrics  `json:"metrics"`
	MonthlyReturns   []MonthlyReturn  `json:"monthlyReturns"`
	BestMonth        *MonthlyReturn   `json:"bestMonth,omitempty"`
	WorstMonth       *MonthlyReturn   `json:"worstMonth,omitempty"`
	HaltedByStopLoss bool             `json:"haltedByStopLoss"`
	ComputedAt       time.Time        `json:"computedAt"`
}
