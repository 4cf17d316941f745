package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		Info:    platform.Info{ID: "kalshi"},
		HTTP:    resty.New().SetBaseURL(srv.URL),
		Log:     zerolog.Nop(),
		Retry:   adapter.RetryConfig{MaxAttempts: 1, BaseDelay: 0, Timeout: 5 * time.Second},
		Breaker: adapter.NewCircuitBreaker("test"),
		Limiter: adapter.NewRateLimiter(1000, 1000),
	}
}

func TestDecodeKalshiFills_YesMapsBull_NoMapsBear(t *testing.T) {
	c := &Client{Info: platform.Info{ID: "kalshi"}}
	fills := []kalshiFill{
		{TradeID: "t1", TickerID: "MKT-1", Side: "yes", Count: 10, YesPrice: 55, CreatedAt: "2026-01-01T00:00:00Z"},
		{TradeID: "t2", TickerID: "MKT-1", Side: "no", Count: 4, YesPrice: 20, CreatedAt: "2026-01-01T00:00:00Z"},
	}

	bets, err := decodeKalshiFills(c, fills)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, model.DirectionBull, bets[0].Direction)
	assert.Equal(t, model.DirectionBear, bets[1].Direction)
	assert.Equal(t, platform.Platform("kalshi"), bets[0].Platform)
	// 10 contracts * 55 cents = 550 cents = 5.50 notional
	assert.InDelta(t, 5.5, bets[0].Amount.Float64(), 0.0001)
}

func TestDecodeKalshiFills_UnparsableTimestampFallsBackToNow(t *testing.T) {
	c := &Client{Info: platform.Info{ID: "kalshi"}}
	bets, err := decodeKalshiFills(c, []kalshiFill{
		{TradeID: "t1", TickerID: "MKT-1", Side: "yes", Count: 1, YesPrice: 50, CreatedAt: "not-a-time"},
	})
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.False(t, bets[0].Timestamp.IsZero())
}

func TestKalshiMapper_FetchMarketOutcome_Settled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":{"ticker":"MKT-1","status":"settled","result":"yes","close_time":"2026-01-02T00:00:00Z"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	outcome, err := KalshiMapper{}.FetchMarketOutcome(context.Background(), c, "MKT-1")
	require.NoError(t, err)
	require.True(t, outcome.Resolved)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, model.DirectionBull, *outcome.Winner)
}

func TestKalshiMapper_FetchMarketOutcome_NotYetSettled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":{"ticker":"MKT-1","status":"active"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	outcome, err := KalshiMapper{}.FetchMarketOutcome(context.Background(), c, "MKT-1")
	require.NoError(t, err)
	assert.False(t, outcome.Resolved)
	assert.Nil(t, outcome.Winner)
}
