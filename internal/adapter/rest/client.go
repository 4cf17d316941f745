// Package rest implements the off-chain adapter family: venues with a
// plain HTTP JSON API and no on-chain settlement layer (Kalshi-style
// regulated event contracts, Manifold-style play-money markets).
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/platform"
)

// Client bundles the HTTP client and resilience helpers shared by every
// REST-family adapter.
type Client struct {
	Info platform.Info
	HTTP *resty.Client
	Log  zerolog.Logger

	Retry   adapter.RetryConfig
	Breaker *adapter.CircuitBreaker
	Limiter *adapter.RateLimiter
}

// ClientConfig is the per-platform wiring the caller supplies.
type ClientConfig struct {
	Info           platform.Info
	BaseURL        string
	APIKey         string // empty for venues with no auth requirement on read endpoints
	RequestsPerSec float64
	Burst          int
	Log            zerolog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(0). // adapter.Retry owns backoff, not resty's own retry
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		http.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		Info:    cfg.Info,
		HTTP:    http,
		Log:     cfg.Log.With().Str("platform", string(cfg.Info.ID)).Logger(),
		Retry:   adapter.DefaultRetryConfig(),
		Breaker: adapter.NewCircuitBreaker(string(cfg.Info.ID)),
		Limiter: adapter.NewRateLimiter(rps, burst),
	}
}

// Initialize probes connectivity, expecting a 200 from the venue's
// health/status endpoint. Idempotent.
func (c *Client) Initialize(ctx context.Context, healthPath string) error {
	return adapter.Retry(ctx, c.Retry, c.Log, func(attemptCtx context.Context) error {
		if err := c.Limiter.Wait(attemptCtx); err != nil {
			return err
		}
		resp, err := c.HTTP.R().SetContext(attemptCtx).Get(healthPath)
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%s: health probe status %d", c.Info.ID, resp.StatusCode())
		}
		return nil
	})
}

// Get issues a rate-limited, retried GET decoding into result.
func (c *Client) Get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	return adapter.Retry(ctx, c.Retry, c.Log, func(attemptCtx context.Context) error {
		if err := c.Limiter.Wait(attemptCtx); err != nil {
			return err
		}
		req := c.HTTP.R().SetContext(attemptCtx).SetResult(result)
		if query != nil {
			req.SetQueryParams(query)
		}
		resp, err := req.Get(path)
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%s: GET %s: status %d: %s", c.Info.ID, path, resp.StatusCode(), resp.String())
		}
		return nil
	})
}
