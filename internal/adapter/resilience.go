package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RetryConfig controls the backoff retry helper: base delay scaled by
// attempt count, up to MaxAttempts attempts, each bounded by Timeout.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// DefaultRetryConfig: 3 attempts, 2s base delay scaled linearly by attempt
// number, 15s per-attempt timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second, Timeout: 15 * time.Second}
}

// Retry runs fn up to cfg.MaxAttempts times, each attempt bounded by
// cfg.Timeout and separated by cfg.BaseDelay*attemptNumber of backoff. It
// returns the last error, wrapped, once every attempt fails. The adapters
// built on it pass that error on to their callers; they do not turn it into
// an empty result.
func Retry(ctx context.Context, cfg RetryConfig, log zerolog.Logger, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("maxAttempts", cfg.MaxAttempts).Msg("adapter call failed, retrying")

		if attempt == cfg.MaxAttempts {
			break
		}
		delay := cfg.BaseDelay * time.Duration(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("adapter: exhausted %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// ChunkConfig controls wide-range log scans: process in bounded chunks with
// an inter-chunk delay; on a chunk error, sleep 10x the delay before the
// next chunk rather than aborting the whole backfill.
type ChunkConfig struct {
	ChunkSize int64
	Delay     time.Duration
}

// FastChainChunks suits well-provisioned RPC endpoints; FreeRPCChunks suits
// rate-limited free tiers.
func FastChainChunks() ChunkConfig {
	return ChunkConfig{ChunkSize: 2000, Delay: 250 * time.Millisecond}
}
func FreeRPCChunks() ChunkConfig { return ChunkConfig{ChunkSize: 100, Delay: time.Second} }

// WalkChunks calls fn once per [start, end] sub-range covering
// [fromBlock, toBlock], logging progress per chunk and never aborting the
// walk on a chunk error: it backs off 10x the configured delay and moves on.
func WalkChunks(ctx context.Context, cfg ChunkConfig, fromBlock, toBlock int64, log zerolog.Logger, fn func(ctx context.Context, start, end int64) (found int, err error)) error {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1
	}
	for start := fromBlock; start <= toBlock; start += cfg.ChunkSize {
		end := start + cfg.ChunkSize - 1
		if end > toBlock {
			end = toBlock
		}

		found, err := fn(ctx, start, end)
		entry := log.Info()
		if err != nil {
			entry = log.Warn().Err(err)
		}
		entry.Int64("chunkStart", start).Int64("chunkEnd", end).Int("found", found).Msg("backfill chunk processed")

		delay := cfg.Delay
		if err != nil {
			delay = cfg.Delay * 10
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SeenIDSet is the bounded FIFO-eviction dedup set polling subscriptions use
// to suppress duplicates across poll cycles.
type SeenIDSet struct {
	capacity int
	order    []string
	index    map[string]struct{}
}

// NewSeenIDSet creates a set capped at capacity entries.
func NewSeenIDSet(capacity int) *SeenIDSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SeenIDSet{capacity: capacity, index: make(map[string]struct{}, capacity)}
}

// SeenBefore reports whether id was already recorded, recording it if not.
// Owned by a single adapter's subscription goroutine; no external locking.
func (s *SeenIDSet) SeenBefore(id string) bool {
	if _, ok := s.index[id]; ok {
		return true
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.capacity {
		evict := s.order[0]
		s.order = s.order[1:]
		delete(s.index, evict)
	}
	return false
}

// CircuitBreaker wraps gobreaker.CircuitBreaker for adapter calls so a venue
// that starts failing hard stops eating its rate budget on doomed requests.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker configures a breaker that trips after 5 consecutive
// failures and probes again after 30s.
func NewCircuitBreaker(name string) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn through the breaker.
func (c *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return c.cb.Execute(fn)
}

// State returns the breaker's current state name ("closed", "open",
// "half-open") for health reporting.
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// RateLimiter wraps golang.org/x/time/rate for per-adapter request pacing.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a token-bucket limiter at rps requests/sec with the
// given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
