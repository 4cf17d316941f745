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

func newManifoldTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		Info:    platform.Info{ID: "manifold"},
		HTTP:    resty.New().SetBaseURL(srv.URL),
		Log:     zerolog.Nop(),
		Retry:   adapter.RetryConfig{MaxAttempts: 1, BaseDelay: 0, Timeout: 5 * time.Second},
		Breaker: adapter.NewCircuitBreaker("test"),
		Limiter: adapter.NewRateLimiter(1000, 1000),
	}
}

func TestDecodeManifoldBets_ScalesFloatAmountWithoutRoundTrip(t *testing.T) {
	c := &Client{Info: platform.Info{ID: "manifold"}}
	bets, err := decodeManifoldBets(c, []manifoldBet{
		{ID: "b1", UserID: "User1", ContractID: "c1", Outcome: "YES", Amount: 12.5, CreatedAt: 1000},
		{ID: "b2", UserID: "User2", ContractID: "c1", Outcome: "NO", Amount: 3, CreatedAt: 2000},
	})
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, "user1", bets[0].Trader, "trader id is lowercased")
	assert.Equal(t, model.DirectionBull, bets[0].Direction)
	assert.Equal(t, model.DirectionBear, bets[1].Direction)
	assert.InDelta(t, 12.5, bets[0].Amount.Float64(), 0.0001)
}

func TestManifoldMapper_FetchMarketOutcome_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","isResolved":true,"resolution":"CANCEL","resolutionTime":1700000000000}`))
	}))
	defer srv.Close()

	c := newManifoldTestClient(t, srv)
	outcome, err := ManifoldMapper{}.FetchMarketOutcome(context.Background(), c, "c1")
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Nil(t, outcome.Winner, "CANCEL is a legitimate void outcome, not an error")
	require.NotNil(t, outcome.ResolvedAt)
}

func TestManifoldMapper_FetchActiveMarkets_SkipsResolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"open1","isResolved":false,"volume":100,"pool":{"YES":60,"NO":40}},
			{"id":"closed1","isResolved":true,"volume":50,"pool":{"YES":30,"NO":20}}
		]`))
	}))
	defer srv.Close()

	c := newManifoldTestClient(t, srv)
	markets, err := ManifoldMapper{}.FetchActiveMarkets(context.Background(), c, 10)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "open1", markets[0].ID)
}
