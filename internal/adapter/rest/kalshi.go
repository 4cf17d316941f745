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

// KalshiMapper implements Mapper for Kalshi's regulated event-contract API.
// Contracts trade in whole cents (1-100); a YES contract purchase maps to
// model.DirectionBull, NO to model.DirectionBear.
type KalshiMapper struct{}

func (KalshiMapper) HealthPath() string { return "/trade-api/v2/exchange/status" }

type kalshiFill struct {
	TradeID   string `json:"trade_id"`
	TickerID  string `json:"ticker"`
	Side      string `json:"side"` // "yes" / "no"
	Count     int64  `json:"count"`
	YesPrice  int64  `json:"yes_price"` // cents
	CreatedAt string `json:"created_time"`
}

type kalshiFillsResponse struct {
	Fills  []kalshiFill `json:"fills"`
	Cursor string       `json:"cursor"`
}

func (KalshiMapper) FetchUserBets(ctx context.Context, c *Client, trader string, since *time.Time) ([]model.Bet, error) {
	query := map[string]string{"user_id": trader}
	if since != nil {
		query["min_ts"] = fmt.Sprintf("%d", since.Unix())
	}
	var resp kalshiFillsResponse
	if err := c.Get(ctx, "/trade-api/v2/portfolio/fills", query, &resp); err != nil {
		return nil, err
	}
	bets, err := decodeKalshiFills(c, resp.Fills)
	if err != nil {
		return nil, err
	}
	for i := range bets {
		bets[i].Trader = strings.ToLower(trader)
	}
	return bets, nil
}

func (KalshiMapper) FetchMarketBets(ctx context.Context, c *Client, marketID string) ([]model.Bet, error) {
	var resp kalshiFillsResponse
	if err := c.Get(ctx, "/trade-api/v2/markets/"+marketID+"/trades", nil, &resp); err != nil {
		return nil, err
	}
	return decodeKalshiFills(c, resp.Fills)
}

func (KalshiMapper) FetchRecentBets(ctx context.Context, c *Client, window time.Duration, limit int) ([]model.Bet, error) {
	since := time.Now().Add(-window).Unix()
	var resp kalshiFillsResponse
	if err := c.Get(ctx, "/trade-api/v2/markets/trades", map[string]string{
		"min_ts": fmt.Sprintf("%d", since),
		"limit":  fmt.Sprintf("%d", limit),
	}, &resp); err != nil {
		return nil, err
	}
	return decodeKalshiFills(c, resp.Fills)
}

type kalshiMarket struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Status    string `json:"status"` // "active","closed","settled"
	Result    string `json:"result"` // "yes","no","" (void)
	CloseTime string `json:"close_time"`
	Volume    int64  `json:"volume"`
}

func (KalshiMapper) FetchMarketOutcome(ctx context.Context, c *Client, marketID string) (adapter.MarketOutcome, error) {
	var resp struct {
		Market kalshiMarket `json:"market"`
	}
	if err := c.Get(ctx, "/trade-api/v2/markets/"+marketID, nil, &resp); err != nil {
		return adapter.MarketOutcome{}, err
	}
	m := resp.Market
	if m.Status != "settled" {
		return adapter.MarketOutcome{Resolved: false}, nil
	}

	var winner *model.Direction
	switch strings.ToLower(m.Result) {
	case "yes":
		d := model.DirectionBull
		winner = &d
	case "no":
		d := model.DirectionBear
		winner = &d
	}

	var resolvedAt *time.Time
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		resolvedAt = &t
	}
	return adapter.MarketOutcome{Resolved: true, Winner: winner, ResolvedAt: resolvedAt}, nil
}

func (KalshiMapper) FetchActiveMarkets(ctx context.Context, c *Client, limit int) ([]model.Market, error) {
	var resp struct {
		Markets []kalshiMarket `json:"markets"`
	}
	if err := c.Get(ctx, "/trade-api/v2/markets", map[string]string{
		"status": "open",
		"limit":  fmt.Sprintf("%d", limit),
	}, &resp); err != nil {
		return nil, err
	}

	out := make([]model.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		volume, err := model.FromNativeUnits(big.NewInt(m.Volume), 2)
		if err != nil {
			continue
		}
		out = append(out, model.Market{ID: m.Ticker, Platform: c.Info.ID, Title: m.Title, TotalAmount: volume})
	}
	return out, nil
}

func (KalshiMapper) CurrentEpoch(ctx context.Context, c *Client) (int64, error) {
	var resp struct {
		ServerTime int64 `json:"server_time"`
	}
	if err := c.Get(ctx, "/trade-api/v2/exchange/status", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

func decodeKalshiFills(c *Client, fills []kalshiFill) ([]model.Bet, error) {
	bets := make([]model.Bet, 0, len(fills))
	for _, f := range fills {
		direction := model.DirectionBull
		if strings.ToLower(f.Side) == "no" {
			direction = model.DirectionBear
		}

		notionalCents := f.Count * f.YesPrice
		amount, err := model.FromNativeUnits(big.NewInt(notionalCents), 2)
		if err != nil {
			return nil, err
		}

		ts, err := time.Parse(time.RFC3339, f.CreatedAt)
		if err != nil {
			ts = time.Now()
		}

		bets = append(bets, model.Bet{
			ID:        f.TradeID,
			Platform:  c.Info.ID,
			MarketID:  f.TickerID,
			Direction: direction,
			Amount:    amount,
			Timestamp: ts,
			Won:       nil,
		})
	}
	return bets, nil
}
