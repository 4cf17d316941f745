package rest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/model"
)

// ManifoldMapper implements Mapper for Manifold's play-money market API.
// Bets carry a fractional MANA amount, already represented as a JSON
// number; this mapper scales it into integer micro-MANA before handing it
// to model.FromNativeUnits to avoid a float round-trip at ingress.
type ManifoldMapper struct{}

func (ManifoldMapper) HealthPath() string { return "/v0/me" }

type manifoldBet struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	ContractID string  `json:"contractId"`
	Outcome    string  `json:"outcome"` // "YES" / "NO"
	Amount     float64 `json:"amount"`
	CreatedAt  int64   `json:"createdTime"` // epoch millis
}

func (ManifoldMapper) FetchUserBets(ctx context.Context, c *Client, trader string, since *time.Time) ([]model.Bet, error) {
	query := map[string]string{"userId": trader, "limit": "1000"}
	var raw []manifoldBet
	if err := c.Get(ctx, "/v0/bets", query, &raw); err != nil {
		return nil, err
	}
	bets, err := decodeManifoldBets(c, raw)
	if err != nil {
		return nil, err
	}
	if since == nil {
		return bets, nil
	}
	out := bets[:0]
	for _, b := range bets {
		if !b.Timestamp.Before(*since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (ManifoldMapper) FetchMarketBets(ctx context.Context, c *Client, marketID string) ([]model.Bet, error) {
	var raw []manifoldBet
	if err := c.Get(ctx, "/v0/bets", map[string]string{"contractId": marketID, "limit": "1000"}, &raw); err != nil {
		return nil, err
	}
	return decodeManifoldBets(c, raw)
}

func (ManifoldMapper) FetchRecentBets(ctx context.Context, c *Client, window time.Duration, limit int) ([]model.Bet, error) {
	var raw []manifoldBet
	if err := c.Get(ctx, "/v0/bets", map[string]string{"limit": fmt.Sprintf("%d", limit)}, &raw); err != nil {
		return nil, err
	}
	bets, err := decodeManifoldBets(c, raw)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-window)
	out := bets[:0]
	for _, b := range bets {
		if b.Timestamp.After(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

type manifoldMarket struct {
	ID             string  `json:"id"`
	Question       string  `json:"question"`
	IsResolved     bool    `json:"isResolved"`
	Resolution     string  `json:"resolution"` // "YES"/"NO"/"CANCEL"
	ResolutionTime int64   `json:"resolutionTime"`
	Volume         float64 `json:"volume"`
	Pool           struct {
		YES float64 `json:"YES"`
		NO  float64 `json:"NO"`
	} `json:"pool"`
}

func (ManifoldMapper) FetchMarketOutcome(ctx context.Context, c *Client, marketID string) (adapter.MarketOutcome, error) {
	var m manifoldMarket
	if err := c.Get(ctx, "/v0/market/"+marketID, nil, &m); err != nil {
		return adapter.MarketOutcome{}, err
	}
	if !m.IsResolved {
		return adapter.MarketOutcome{Resolved: false}, nil
	}

	var winner *model.Direction
	switch strings.ToUpper(m.Resolution) {
	case "YES":
		d := model.DirectionBull
		winner = &d
	case "NO":
		d := model.DirectionBear
		winner = &d
	} // "CANCEL" or "MKT": legitimate void, winner stays nil

	var resolvedAt *time.Time
	if m.ResolutionTime > 0 {
		t := time.UnixMilli(m.ResolutionTime)
		resolvedAt = &t
	}
	return adapter.MarketOutcome{Resolved: true, Winner: winner, ResolvedAt: resolvedAt}, nil
}

func (ManifoldMapper) FetchActiveMarkets(ctx context.Context, c *Client, limit int) ([]model.Market, error) {
	var raw []manifoldMarket
	if err := c.Get(ctx, "/v0/markets", map[string]string{"limit": fmt.Sprintf("%d", limit)}, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Market, 0, len(raw))
	for _, m := range raw {
		if m.IsResolved {
			continue
		}
		bull := model.FromFloat(m.Pool.YES)
		bear := model.FromFloat(m.Pool.NO)
		total := model.FromFloat(m.Volume)
		out = append(out, model.Market{
			ID:          m.ID,
			Platform:    c.Info.ID,
			Title:       m.Question,
			BullAmount:  bull,
			BearAmount:  bear,
			TotalAmount: total,
		})
	}
	return out, nil
}

func (ManifoldMapper) CurrentEpoch(ctx context.Context, c *Client) (int64, error) {
	return time.Now().Unix(), nil
}

func decodeManifoldBets(c *Client, raw []manifoldBet) ([]model.Bet, error) {
	bets := make([]model.Bet, 0, len(raw))
	for _, b := range raw {
		direction := model.DirectionBull
		if strings.ToUpper(b.Outcome) == "NO" {
			direction = model.DirectionBear
		}

		// Manifold reports amount as a MANA float; scale to micro-MANA
		// integer units (6 implied decimals) before canonicalizing, so the
		// conversion is integer math even though the wire value is a float.
		microMana := big.NewInt(int64(b.Amount * 1_000_000))
		amount, err := model.FromNativeUnits(microMana, 6)
		if err != nil {
			return nil, err
		}

		bets = append(bets, model.Bet{
			ID:        b.ID,
			Trader:    strings.ToLower(b.UserID),
			Platform:  c.Info.ID,
			MarketID:  b.ContractID,
			Direction: direction,
			Amount:    amount,
			Timestamp: time.UnixMilli(b.CreatedAt),
			Won:       nil,
		})
	}
	return bets, nil
}
