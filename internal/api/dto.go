package api

import (
	"time"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// envelope is the uniform response wrapper every REST handler except
// GET /health returns: {success, data} on success, {success:false, error}
// on failure.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// pagination accompanies list endpoints that accept a `limit` query param.
type pagination struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

// healthResponse is GET /health's body, never gated by auth.
type healthResponse struct {
	Status        string               `json:"status"`
	Timestamp     time.Time            `json:"timestamp"`
	UptimeSeconds float64              `json:"uptimeSeconds"`
	Bots          map[string]BotStatus `json:"bots"`
}

// BotStatus is one analyzer bot's entry in GET /health's bots map.
type BotStatus struct {
	Running     bool       `json:"running"`
	LastCycleAt *time.Time `json:"lastCycleAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// backtestRequest is POST /api/backtest's body. Optional fields fall back
// to the engine's documented defaults.
type backtestRequest struct {
	Leader            string   `json:"leader"`
	Platform          string   `json:"platform"`
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate"`
	InitialCapital    *string  `json:"initialCapital,omitempty"`
	AllocationPercent *float64 `json:"allocationPercent,omitempty"`
	MaxBetSize        *string  `json:"maxBetSize,omitempty"`
	Compounding       *bool    `json:"compounding,omitempty"`
}

// alertActionRequest is POST /api/alerts/:id/{dismiss|confirm}'s body.
type alertActionRequest struct {
	ReviewedBy string `json:"reviewedBy"`
	Notes      string `json:"notes"`
}

// UnifiedTrader is the leaderboard/trader-profile response shape.
type UnifiedTrader struct {
	model.TruthScore
}

// WalletAnalysis composes a trader's per-platform rollups with their
// unified score for GET /api/wallet/:address/analyze. Not part of
// internal/model because it is a read-side composition, never persisted on
// its own.
type WalletAnalysis struct {
	Trader        string                                `json:"trader"`
	Score         *model.TruthScore                     `json:"score,omitempty"`
	PlatformStats map[platform.Platform]model.UserStats `json:"platformStats"`
	RecentBets    []model.Bet                           `json:"recentBets"`
}

func ok(data interface{}) envelope { return envelope{Success: true, Data: data} }
func fail(err string) envelope     { return envelope{Success: false, Error: err} }
