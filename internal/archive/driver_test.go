package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/scheduler"
)

func TestDriverEnqueueOneQueuesBothDirectionsForAFreshSeries(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)
	planner := NewWindowPlanner()
	builder := NewTaskBuilder(tracker, planner)
	sched := scheduler.NewFairScheduler()
	d := NewDriver(builder, sched, "binance", nil, nil)

	n := d.EnqueueOne(context.Background(), "BTCUSDT", model.TimeFrame1m)
	assert.Equal(t, 2, n, "a fresh series has 90 days of both forward and backward work to do")
	assert.Equal(t, 2, sched.QueueDepth())
}

func TestDriverEnqueueOneSkipsWhenCaughtUp(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	now := model.TimeFrame1m.AlignDown(NewWindowPlanner().now().UnixMilli())
	rows.set("binance", "BTCUSDT", model.TimeFrame1m, now, now)
	cols.set("binance", "BTCUSDT", model.TimeFrame1m, 0, 0)
	tracker := NewProgressTracker(rows, cols)
	planner := NewWindowPlanner()
	builder := NewTaskBuilder(tracker, planner)
	sched := scheduler.NewFairScheduler()
	d := NewDriver(builder, sched, "binance", nil, nil)

	n := d.EnqueueOne(context.Background(), "BTCUSDT", model.TimeFrame1m)
	assert.Equal(t, 0, n, "forward caught up to now and backward already at the zero floor")
}

func TestDriverEnqueueOneRejectsDuplicateInFlightKey(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)
	planner := NewWindowPlanner()
	builder := NewTaskBuilder(tracker, planner)
	sched := scheduler.NewFairScheduler()
	d := NewDriver(builder, sched, "binance", nil, nil)

	first := d.EnqueueOne(context.Background(), "BTCUSDT", model.TimeFrame1m)
	require.Equal(t, 2, first)

	second := d.EnqueueOne(context.Background(), "BTCUSDT", model.TimeFrame1m)
	assert.Equal(t, 0, second, "both directions are already in flight")
}

func TestDriverEnqueueDueCoversEveryConfiguredSeries(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)
	planner := NewWindowPlanner()
	builder := NewTaskBuilder(tracker, planner)
	sched := scheduler.NewFairScheduler()
	d := NewDriver(builder, sched, "binance", []string{"BTCUSDT", "ETHUSDT"}, []model.TimeFrame{model.TimeFrame1m})

	n := d.EnqueueDue(context.Background())
	assert.Equal(t, 4, n, "forward and backward catch-up should queue for both symbols")
	assert.Equal(t, 4, sched.QueueDepth())
}
