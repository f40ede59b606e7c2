package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func task(symbol string) model.ArchiveTask {
	return model.ArchiveTask{
		ID:        symbol,
		Symbol:    symbol,
		TimeFrame: model.TimeFrame1m,
		Direction: model.DirectionForward,
	}
}

func TestFairSchedulerRejectsDuplicateKey(t *testing.T) {
	s := NewFairScheduler()
	assert.True(t, s.Enqueue(task("BTCUSDT"), 1))
	assert.False(t, s.Enqueue(task("BTCUSDT"), 1), "duplicate key while in flight must be rejected")

	s.Done(task("BTCUSDT"))
	assert.True(t, s.Enqueue(task("BTCUSDT"), 1), "key released by Done can be re-enqueued")
}

func TestFairSchedulerDispatchesAllPriorityLevels(t *testing.T) {
	s := NewFairScheduler()
	s.Enqueue(task("HIGH"), 1)
	s.Enqueue(task("LOW"), 10)

	var mu sync.Mutex
	var order []string

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		s.Run(ctx, func(t model.ArchiveTask) {
			mu.Lock()
			order = append(order, t.ID)
			mu.Unlock()
			s.Done(t)
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"HIGH", "LOW"}, order, "lower priority number dispatched first within a round")
}

func TestFairSchedulerTerminatesOnEmptyQueues(t *testing.T) {
	s := NewFairScheduler()
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), func(model.ArchiveTask) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler should terminate immediately on empty queues")
	}
}

func TestFairSchedulerQueueDepth(t *testing.T) {
	s := NewFairScheduler()
	s.Enqueue(task("A"), 1)
	s.Enqueue(task("B"), 2)
	assert.Equal(t, 2, s.QueueDepth())
}
