package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

// Retry must call fn exactly MaxAttempts times on sustained failure, no
// more, no fewer.
func TestRetry_ExactlyNAttemptsBeforeReturningError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
	calls := 0
	wantErr := errors.New("upstream unavailable")

	err := Retry(context.Background(), cfg, testLogger(), func(context.Context) error {
		calls++
		return wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, cfg.MaxAttempts, calls)
}

func TestRetry_SucceedsOnLaterAttemptWithoutExhausting(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
	calls := 0

	err := Retry(context.Background(), cfg, testLogger(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "must stop retrying as soon as fn succeeds")
}

func TestRetry_CtxCancelledDuringBackoffReturnsCtxErr(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, Timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, testLogger(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation during the first backoff must cut the walk short")
}

// A failing chunk must not stop the walk: every chunk (failed or not) is
// still visited, with a 10x delay after the failure.
func TestWalkChunks_BacksOffTenXOnChunkError(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 10, Delay: time.Millisecond}
	var visited []int64
	failAt := int64(10)

	start := time.Now()
	err := WalkChunks(context.Background(), cfg, 0, 29, testLogger(), func(_ context.Context, chunkStart, chunkEnd int64) (int, error) {
		visited = append(visited, chunkStart)
		if chunkStart == failAt {
			return 0, errors.New("rpc error")
		}
		return 1, nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10, 20}, visited, "a chunk error must not abort the remaining range")
	// one normal delay (0->10), one 10x delay after the failing chunk
	// (10->20), one normal delay (20->30): the 10x backoff dominates the
	// floor, so elapsed must clear it.
	assert.GreaterOrEqual(t, elapsed, 10*cfg.Delay)
}

func TestWalkChunks_CtxCancelledStopsWalk(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 10, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WalkChunks(ctx, cfg, 0, 99, testLogger(), func(context.Context, int64, int64) (int, error) {
		calls++
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "must not proceed past the chunk in flight when ctx is cancelled during its post-chunk delay")
}

func TestSeenIDSet_EvictsOldestAtCapacity(t *testing.T) {
	s := NewSeenIDSet(2)

	assert.False(t, s.SeenBefore("a"))
	assert.False(t, s.SeenBefore("b"))
	assert.True(t, s.SeenBefore("a"), "a is still within capacity")

	assert.False(t, s.SeenBefore("c")) // evicts "a"
	assert.False(t, s.SeenBefore("a"), "a was evicted once capacity was exceeded")
}

func TestSeenIDSet_DefaultsCapacityWhenNonPositive(t *testing.T) {
	s := NewSeenIDSet(0)
	assert.Equal(t, 1000, s.capacity)
}
