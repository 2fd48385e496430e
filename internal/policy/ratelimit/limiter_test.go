package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ccslice/internal/remote"
)

var (
	_ remote.Waiter    = (*Limiter)(nil)
	_ remote.Throttler = (*Limiter)(nil)
)

const archive = "https://data.commoncrawl.org/crawl-data/CC-MAIN-2024-10/segments/1/warc/a.warc.gz"

func TestLimiterPacesPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, archive))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://data.commoncrawl.org/cc-index/table/part-1.parquet"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://mirror.example/part-1.parquet"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterUnpacedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), archive))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterThrottlePausesHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Throttle(archive, 120*time.Millisecond)
	// A shorter pause does not shorten the current one.
	l.Throttle(archive, time.Millisecond)
	l.Throttle(archive, -time.Second)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://data.commoncrawl.org/other"))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://mirror.example/x"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterCanceledWhilePaused(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Throttle(archive, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, archive)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "rate limit wait")
}

func TestLimiterCanceledWhilePacing(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), archive))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorContains(t, l.Wait(ctx, archive), "rate limit wait")
}
