package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

// OddsAdapter implements adapter.Adapter for subgraph-indexed outcome
// markets (Polymarket CTF and Azuro-style parimutuel pools). Reads go
// through a GraphQL subgraph rather than raw log filtering.
type OddsAdapter struct {
	client       *Client
	seen         *adapter.SeenIDSet
	pollInterval time.Duration
}

func NewOddsAdapter(c *Client, pollInterval time.Duration) *OddsAdapter {
	return &OddsAdapter{client: c, seen: adapter.NewSeenIDSet(1000), pollInterval: pollInterval}
}

func (a *OddsAdapter) Platform() platform.Platform { return a.client.Info.ID }

func (a *OddsAdapter) Initialize(ctx context.Context) error {
	if err := a.client.Initialize(ctx); err != nil {
		return err
	}
	if a.client.Subgraph == nil {
		return fmt.Errorf("evm odds %s: no subgraph configured", a.client.Info.ID)
	}
	return adapter.Retry(ctx, a.client.Retry, a.client.Log, func(attemptCtx context.Context) error {
		resp, err := a.client.Subgraph.R().SetContext(attemptCtx).SetBody(gqlQuery{Query: "{ _meta { block { number } } }"}).Post("/")
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("subgraph probe: status %d", resp.StatusCode())
		}
		return nil
	})
}

func (a *OddsAdapter) CurrentCursor(ctx context.Context) (int64, error) {
	return a.client.CurrentBlock(ctx)
}

type gqlQuery struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type subgraphBet struct {
	ID        string `json:"id"`
	Trader    string `json:"trader"`
	MarketID  string `json:"marketId"`
	Outcome   string `json:"outcome"` // "YES"/"NO" or "HOME"/"AWAY"
	Amount    string `json:"amount"`  // raw native units, decimal string
	Timestamp string `json:"timestamp"`
	TxHash    string `json:"txHash"`
	LogIndex  string `json:"logIndex"`
	Block     string `json:"block"`
}

type subgraphBetsResponse struct {
	Data struct {
		Bets []subgraphBet `json:"bets"`
	} `json:"data"`
}

const betsByTraderQuery = `query($trader: String!, $since: Int!) {
  bets(where: { trader: $trader, timestamp_gte: $since }, orderBy: timestamp, orderDirection: asc, first: 1000) {
    id trader marketId outcome amount timestamp txHash logIndex block
  }
}`

const betsByMarketQuery = `query($market: String!) {
  bets(where: { marketId: $market }, orderBy: timestamp, orderDirection: asc, first: 1000) {
    id trader marketId outcome amount timestamp txHash logIndex block
  }
}`

const recentBetsQuery = `query($since: Int!) {
  bets(where: { timestamp_gte: $since }, orderBy: timestamp, orderDirection: desc, first: 1000) {
    id trader marketId outcome amount timestamp txHash logIndex block
  }
}`

const betsByBlockRangeQuery = `query($from: Int!, $to: Int!) {
  bets(where: { block_gte: $from, block_lte: $to }, orderBy: block, orderDirection: asc, first: 1000) {
    id trader marketId outcome amount timestamp txHash logIndex block
  }
}`

func (a *OddsAdapter) query(ctx context.Context, q string, vars map[string]interface{}) ([]subgraphBet, error) {
	if err := a.client.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var result subgraphBetsResponse
	err := adapter.Retry(ctx, a.client.Retry, a.client.Log, func(attemptCtx context.Context) error {
		resp, rerr := a.client.Subgraph.R().
			SetContext(attemptCtx).
			SetBody(gqlQuery{Query: q, Variables: vars}).
			SetResult(&result).
			Post("/")
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("subgraph query: status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Data.Bets, nil
}

func (a *OddsAdapter) GetBetsForUser(ctx context.Context, trader string, since *time.Time) (adapter.BetsForUserResult, error) {
	addr, err := NormalizeAddress(trader)
	if err != nil {
		return adapter.BetsForUserResult{}, err
	}

	sinceUnix := int64(0)
	if since != nil {
		sinceUnix = since.Unix()
	}

	raw, err := a.query(ctx, betsByTraderQuery, map[string]interface{}{"trader": addr, "since": sinceUnix})
	if err != nil {
		return adapter.BetsForUserResult{}, err
	}

	if len(raw) == 0 {
		// Subgraph returned empty. An on-chain transfer-log fallback is not
		// generally possible for parimutuel outcome tokens without
		// per-market ABI bindings this adapter does not carry, so coverage
		// is flagged rather than silently treated as "no bets".
		return adapter.BetsForUserResult{Bets: nil, PartialCoverage: true, Source: "api"}, nil
	}

	bets, err := a.decodeBets(raw)
	if err != nil {
		return adapter.BetsForUserResult{}, err
	}
	return adapter.BetsForUserResult{Bets: bets, PartialCoverage: false, Source: "api"}, nil
}

func (a *OddsAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	raw, err := a.query(ctx, betsByMarketQuery, map[string]interface{}{"market": marketID})
	if err != nil {
		return nil, err
	}
	return a.decodeBets(raw)
}

func (a *OddsAdapter) GetTraderBets(ctx context.Context, trader string, limit int) ([]model.Bet, error) {
	res, err := a.GetBetsForUser(ctx, trader, nil)
	if err != nil {
		return nil, err
	}
	bets := res.Bets
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *OddsAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]model.Bet, error) {
	since := time.Now().Add(-window).Unix()
	raw, err := a.query(ctx, recentBetsQuery, map[string]interface{}{"since": since})
	if err != nil {
		return nil, err
	}
	bets, err := a.decodeBets(raw)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *OddsAdapter) GetMarketOutcome(ctx context.Context, marketID string) (adapter.MarketOutcome, error) {
	var result struct {
		Data struct {
			Market struct {
				Resolved   bool   `json:"resolved"`
				Winner     string `json:"winner"` // "YES"/"NO"/"" (unresolved or void)
				ResolvedAt string `json:"resolvedAt"`
			} `json:"market"`
		} `json:"data"`
	}
	if err := a.client.Limiter.Wait(ctx); err != nil {
		return adapter.MarketOutcome{}, err
	}
	err := adapter.Retry(ctx, a.client.Retry, a.client.Log, func(attemptCtx context.Context) error {
		resp, rerr := a.client.Subgraph.R().
			SetContext(attemptCtx).
			SetBody(gqlQuery{
				Query:     `query($id: String!) { market(id: $id) { resolved winner resolvedAt } }`,
				Variables: map[string]interface{}{"id": marketID},
			}).
			SetResult(&result).
			Post("/")
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("subgraph market query: status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return adapter.MarketOutcome{}, err
	}

	m := result.Data.Market
	if !m.Resolved {
		return adapter.MarketOutcome{Resolved: false}, nil
	}

	var winner *model.Direction
	switch strings.ToUpper(m.Winner) {
	case "YES", "HOME", "UP":
		d := model.DirectionBull
		winner = &d
	case "NO", "AWAY", "DOWN":
		d := model.DirectionBear
		winner = &d
	} // empty string: legitimate draw/void, winner stays nil

	var resolvedAt *time.Time
	if m.ResolvedAt != "" {
		if unix, ok := new(big.Int).SetString(m.ResolvedAt, 10); ok {
			t := time.Unix(unix.Int64(), 0)
			resolvedAt = &t
		}
	}

	return adapter.MarketOutcome{Resolved: true, Winner: winner, ResolvedAt: resolvedAt}, nil
}

func (a *OddsAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	if limit <= 0 {
		limit = 100
	}
	var result struct {
		Data struct {
			Markets []struct {
				ID          string `json:"id"`
				Title       string `json:"title"`
				BullVolume  string `json:"bullVolume"`
				BearVolume  string `json:"bearVolume"`
				TotalVolume string `json:"totalVolume"`
			} `json:"markets"`
		} `json:"data"`
	}
	if err := a.client.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	err := adapter.Retry(ctx, a.client.Retry, a.client.Log, func(attemptCtx context.Context) error {
		resp, rerr := a.client.Subgraph.R().
			SetContext(attemptCtx).
			SetBody(gqlQuery{
				Query:     `query($first: Int!) { markets(where: { resolved: false }, first: $first) { id title bullVolume bearVolume totalVolume } }`,
				Variables: map[string]interface{}{"first": limit},
			}).
			SetResult(&result).
			Post("/")
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("subgraph markets query: status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	markets := make([]model.Market, 0, len(result.Data.Markets))
	for _, m := range result.Data.Markets {
		bull, err := decimalToAmount(m.BullVolume)
		if err != nil {
			continue
		}
		bear, err := decimalToAmount(m.BearVolume)
		if err != nil {
			continue
		}
		total, err := decimalToAmount(m.TotalVolume)
		if err != nil {
			continue
		}
		markets = append(markets, model.Market{
			ID:          m.ID,
			Platform:    a.client.Info.ID,
			Title:       m.Title,
			BullAmount:  bull,
			BearAmount:  bear,
			TotalAmount: total,
		})
	}
	return markets, nil
}

func (a *OddsAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	outcome, err := a.GetMarketOutcome(ctx, marketID)
	if err != nil {
		return false, err
	}
	return !outcome.Resolved, nil
}

// Backfill for subgraph-indexed venues queries the subgraph per block-range
// chunk, keeping the method signature and restartability uniform with the
// log-scanning adapters.
func (a *OddsAdapter) Backfill(ctx context.Context, fromBlock, toBlock int64, onBet adapter.OnBet) error {
	return adapter.WalkChunks(ctx, a.client.Chunks, fromBlock, toBlock, a.client.Log, func(chunkCtx context.Context, start, end int64) (int, error) {
		raw, err := a.query(chunkCtx, betsByBlockRangeQuery, map[string]interface{}{"from": start, "to": end})
		if err != nil {
			return 0, err
		}
		bets, err := a.decodeBets(raw)
		if err != nil {
			return 0, err
		}
		for _, b := range bets {
			if err := onBet(b); err != nil {
				return len(bets), err
			}
		}
		return len(bets), nil
	})
}

func (a *OddsAdapter) Subscribe(ctx context.Context, onBet adapter.OnBet) (adapter.Disposer, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(a.pollInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				bets, err := a.GetRecentBets(pollCtx, a.pollInterval*3, 500)
				if err != nil {
					a.client.Log.Warn().Err(err).Msg("poll subscription fetch failed")
					continue
				}
				for _, b := range bets {
					if a.seen.SeenBefore(b.ID) {
						continue
					}
					if err := onBet(b); err != nil {
						a.client.Log.Warn().Err(err).Msg("poll subscription handler failed")
					}
				}
			}
		}
	}()

	return adapter.Disposer(cancel), nil
}

func (a *OddsAdapter) decodeBets(raw []subgraphBet) ([]model.Bet, error) {
	bets := make([]model.Bet, 0, len(raw))
	for _, sb := range raw {
		amount, err := decimalToAmount(sb.Amount)
		if err != nil {
			return nil, err
		}
		direction := model.DirectionBull
		switch strings.ToUpper(sb.Outcome) {
		case "NO", "AWAY", "DOWN":
			direction = model.DirectionBear
		}

		ts, ok := new(big.Int).SetString(sb.Timestamp, 10)
		if !ok {
			return nil, fmt.Errorf("evm odds: bad timestamp %q", sb.Timestamp)
		}
		logIdx, _ := new(big.Int).SetString(sb.LogIndex, 10)
		if logIdx == nil {
			logIdx = big.NewInt(0)
		}
		block, _ := new(big.Int).SetString(sb.Block, 10)
		if block == nil {
			block = big.NewInt(0)
		}

		bets = append(bets, model.Bet{
			ID:        sb.ID,
			Trader:    strings.ToLower(sb.Trader),
			Platform:  a.client.Info.ID,
			MarketID:  sb.MarketID,
			Direction: direction,
			Amount:    amount,
			Timestamp: time.Unix(ts.Int64(), 0),
			TxHash:    sb.TxHash,
			LogIndex:  int(logIdx.Int64()),
			Block:     block.Uint64(),
			Won:       nil,
		})
	}
	return bets, nil
}

// decimalToAmount parses a subgraph-native decimal string (already scaled
// to the asset's own decimals as an integer, e.g. USDC 6-dec raw units)
// into the canonical 18-dec Amount.
func decimalToAmount(raw string) (model.Amount, error) {
	if raw == "" {
		return model.Zero, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return model.Amount{}, fmt.Errorf("evm odds: bad amount %q", raw)
	}
	// Polymarket/Azuro collateral (USDC) is 6-decimal; this adapter family
	// always deals in USDC-denominated markets.
	return model.FromNativeUnits(v, 6)
}
