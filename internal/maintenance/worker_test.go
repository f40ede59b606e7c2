package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/archive"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/scheduler"
)

type fakeMinMaxStore struct {
	progress map[string]model.Progress
}

func newFakeMinMaxStore() *fakeMinMaxStore {
	return &fakeMinMaxStore{progress: map[string]model.Progress{}}
}

func (f *fakeMinMaxStore) key(exchange, symbol string, tf model.TimeFrame) string {
	return exchange + ":" + symbol + ":" + string(tf)
}

func (f *fakeMinMaxStore) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	p, ok := f.progress[f.key(exchange, symbol, tf)]
	return p, ok, nil
}

func (f *fakeMinMaxStore) UpsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	return nil
}

func (f *fakeMinMaxStore) InsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	return nil
}

func (f *fakeMinMaxStore) QueryRange(ctx context.Context, exchange, symbol string, tf model.TimeFrame, start, end int64, limit int, ascending bool) ([]model.Bar, error) {
	return nil, nil
}

func newTestDriver() (*archive.Driver, *scheduler.FairScheduler) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := archive.NewProgressTracker(rows, cols)
	planner := archive.NewWindowPlanner()
	builder := archive.NewTaskBuilder(tracker, planner)
	sched := scheduler.NewFairScheduler()
	d := archive.NewDriver(builder, sched, "binance", nil, nil)
	return d, sched
}

func TestWorkerCoalescesSignalsOnContextCancel(t *testing.T) {
	driver, sched := newTestDriver()
	signals := make(chan model.MaintenanceSignal, 4)
	w := New(signals, driver, nil)

	signals <- model.MaintenanceSignal{Symbol: "BTCUSDT", Exchange: "binance", TimeFrame: model.TimeFrame1m, CloseMs: 100}
	signals <- model.MaintenanceSignal{Symbol: "BTCUSDT", Exchange: "binance", TimeFrame: model.TimeFrame1m, CloseMs: 200}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.pending[seriesKey{Symbol: "BTCUSDT", Exchange: "binance", TimeFrame: model.TimeFrame1m}] == 200
	}, time.Second, 10*time.Millisecond, "both signals should be coalesced before shutdown")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancel")
	}

	assert.Equal(t, 2, sched.QueueDepth(), "a fresh series has both forward and backward catch-up work")
}

func TestWorkerFlushEnqueuesTasksPerSeries(t *testing.T) {
	driver, sched := newTestDriver()
	signals := make(chan model.MaintenanceSignal, 4)
	w := New(signals, driver, nil)

	w.record(model.MaintenanceSignal{Symbol: "ETHUSDT", Exchange: "binance", TimeFrame: model.TimeFrame1m, CloseMs: 500})
	w.flush(context.Background(), logging.Default().WithComponent("test"))

	assert.Equal(t, 2, sched.QueueDepth(), "a fresh series enqueues both forward and backward tasks")

	var dispatched []model.ArchiveTask
	sched.Run(context.Background(), func(task model.ArchiveTask) {
		dispatched = append(dispatched, task)
		sched.Done(task)
	})
	require.Len(t, dispatched, 2)
	for _, task := range dispatched {
		assert.Equal(t, "ETHUSDT", task.Symbol)
		assert.Equal(t, "binance", task.Exchange)
	}
}
