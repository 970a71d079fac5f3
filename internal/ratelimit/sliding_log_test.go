package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingLogAllowsUpToLimit(t *testing.T) {
	sl := New(3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, sl.Wait(ctx))
	}

	// Fourth call within the window should block until ctx is canceled.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := sl.Wait(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingLogFreesSlotsAfterWindow(t *testing.T) {
	sl := New(1, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, sl.Wait(ctx))

	start := time.Now()
	require.NoError(t, sl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestNoOpNeverBlocks(t *testing.T) {
	n := NoOp{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	require.NoError(t, n.Wait(ctx))
}
