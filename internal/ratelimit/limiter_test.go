package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeight(t *testing.T) {
	cases := []struct {
		limit int
		want  int
	}{
		{1, 1},
		{99, 1},
		{100, 2},
		{499, 2},
		{500, 5},
		{1000, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Weight(tc.limit), "limit=%d", tc.limit)
	}
}

func TestLimiterTryAcquireRespectsBudget(t *testing.T) {
	l := NewLimiter(60) // 1/sec, burst 60

	acquired := 0
	for i := 0; i < 100; i++ {
		if l.TryAcquire(1) {
			acquired++
		}
	}
	assert.LessOrEqual(t, acquired, 60)
	assert.Greater(t, acquired, 0)
}

func TestLimiterBanBlocksAcquire(t *testing.T) {
	l := NewLimiter(DefaultBudget)
	l.RecordBan(time.Now().Add(50 * time.Millisecond))
	require.True(t, l.Banned())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, l.Banned())
}

func TestLimiterAcquireCancelledContext(t *testing.T) {
	l := NewLimiter(1) // very small budget so the second call has to wait
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(context.Background(), 1))
	cancel()
	err := l.Acquire(ctx, 1)
	assert.Error(t, err)
}
