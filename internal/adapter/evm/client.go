// Package evm implements the on-chain adapter family for prediction
// markets built on EVM-compatible chains: binary round contracts in the
// PancakeSwap Prediction style, and subgraph-indexed outcome markets in the
// Polymarket/Azuro style.
package evm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/adapter"
	"github.com/truthfeed/engine/internal/platform"
)

// Client bundles the chain connectivity and subgraph HTTP client shared by
// every EVM-family adapter. One Client is constructed per platform.
type Client struct {
	Info     platform.Info
	RPC      *ethclient.Client
	Subgraph *resty.Client // nil for adapters with no subgraph (pure RPC log scan)
	Log      zerolog.Logger

	Retry   adapter.RetryConfig
	Chunks  adapter.ChunkConfig
	Breaker *adapter.CircuitBreaker
	Limiter *adapter.RateLimiter
}

// ClientConfig is the wiring the caller supplies per platform instance.
type ClientConfig struct {
	Info           platform.Info
	RPCURL         string
	SubgraphURL    string // empty disables subgraph use
	RequestsPerSec float64
	Burst          int
	Log            zerolog.Logger
}

// NewClient dials the RPC endpoint and, if configured, builds a subgraph
// HTTP client. Dial failures are returned to the caller.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm %s: dial rpc: %w", cfg.Info.ID, err)
	}

	var sg *resty.Client
	if cfg.SubgraphURL != "" {
		sg = resty.New().
			SetBaseURL(cfg.SubgraphURL).
			SetTimeout(15*time.Second).
			SetRetryCount(0). // adapter.Retry owns backoff, not resty's own retry
			SetHeader("Content-Type", "application/json")
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
		Info:     cfg.Info,
		RPC:      rpcClient,
		Subgraph: sg,
		Log:      cfg.Log.With().Str("platform", string(cfg.Info.ID)).Logger(),
		Retry:    adapter.DefaultRetryConfig(),
		Chunks:   chunkConfigFor(cfg.Info),
		Breaker:  adapter.NewCircuitBreaker(string(cfg.Info.ID)),
		Limiter:  adapter.NewRateLimiter(rps, burst),
	}, nil
}

// chunkConfigFor picks chunk defaults by chain: well-provisioned RPCs get
// the 2000-block chunk, free/public RPCs the 100-block chunk.
func chunkConfigFor(info platform.Info) adapter.ChunkConfig {
	switch info.Chain {
	case "bsc", "polygon":
		return adapter.FastChainChunks()
	default:
		return adapter.FreeRPCChunks()
	}
}

// Initialize verifies connectivity via a chain-id round-trip. Idempotent.
func (c *Client) Initialize(ctx context.Context) error {
	return adapter.Retry(ctx, c.Retry, c.Log, func(attemptCtx context.Context) error {
		if err := c.Limiter.Wait(attemptCtx); err != nil {
			return err
		}
		_, err := c.RPC.ChainID(attemptCtx)
		return err
	})
}

// CurrentBlock returns the chain's latest block height, the EVM family's
// freshness probe.
func (c *Client) CurrentBlock(ctx context.Context) (int64, error) {
	var height uint64
	err := adapter.Retry(ctx, c.Retry, c.Log, func(attemptCtx context.Context) error {
		if err := c.Limiter.Wait(attemptCtx); err != nil {
			return err
		}
		h, err := c.RPC.BlockNumber(attemptCtx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return int64(height), err
}

// NormalizeAddress lower-cases an EVM address, validating it through
// go-ethereum's parser first so malformed addresses fail loudly rather than
// silently.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("evm: %q is not a valid address", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}
