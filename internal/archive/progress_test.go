package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marketdata/ingestpipe/internal/model"
)

type fakeMinMaxStore struct {
	progress map[string]model.Progress
	err      error
}

func newFakeMinMaxStore() *fakeMinMaxStore {
	return &fakeMinMaxStore{progress: map[string]model.Progress{}}
}

func (f *fakeMinMaxStore) key(exchange, symbol string, tf model.TimeFrame) string {
	return exchange + ":" + symbol + ":" + string(tf)
}

func (f *fakeMinMaxStore) set(exchange, symbol string, tf model.TimeFrame, minMs, maxMs int64) {
	f.progress[f.key(exchange, symbol, tf)] = model.Progress{
		Symbol: symbol, Exchange: exchange, TimeFrame: tf, MinCloseMs: minMs, MaxCloseMs: maxMs,
	}
}

func (f *fakeMinMaxStore) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	if f.err != nil {
		return model.Progress{}, false, f.err
	}
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

func TestProgressTrackerForwardReadsFromRowStore(t *testing.T) {
	rows := newFakeMinMaxStore()
	rows.set("binance", "BTCUSDT", model.TimeFrame1m, 100, 1_000_000)
	cols := newFakeMinMaxStore()

	tracker := NewProgressTracker(rows, cols)
	p := tracker.Forward(context.Background(), "BTCUSDT", "binance", model.TimeFrame1m)
	assert.Equal(t, int64(100), p.MinCloseMs)
	assert.Equal(t, int64(1_000_000), p.MaxCloseMs)
}

func TestProgressTrackerBackwardReadsFromColumnStore(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	cols.set("binance", "BTCUSDT", model.TimeFrame1d, 5_000, 50_000)

	tracker := NewProgressTracker(rows, cols)
	p := tracker.Backward(context.Background(), "BTCUSDT", "binance", model.TimeFrame1d)
	assert.Equal(t, int64(5_000), p.MinCloseMs)
	assert.Equal(t, int64(50_000), p.MaxCloseMs)
}

func TestProgressTrackerFallsBackToNinetyDaysWhenUninitialized(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)

	fixedNow := time.UnixMilli(200 * 24 * 60 * 60 * 1000)
	tracker.now = func() time.Time { return fixedNow }

	p := tracker.Forward(context.Background(), "BTCUSDT", "binance", model.TimeFrame1m)

	wantEdge := model.TimeFrame1m.AlignDown(fixedNow.Add(-progressFallbackWindow).UnixMilli())
	assert.Equal(t, wantEdge, p.MinCloseMs)
	assert.Equal(t, wantEdge, p.MaxCloseMs)
}

func TestProgressTrackerFallsBackToOneDayWhenNinetyDayEdgeIsNonPositive(t *testing.T) {
	rows := newFakeMinMaxStore()
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)

	fixedNow := time.UnixMilli(10 * 24 * 60 * 60 * 1000)
	tracker.now = func() time.Time { return fixedNow }

	p := tracker.Backward(context.Background(), "BTCUSDT", "binance", model.TimeFrame1m)

	wantEdge := model.TimeFrame1m.AlignDown(fixedNow.Add(-progressFallbackMinimum).UnixMilli())
	assert.Equal(t, wantEdge, p.MinCloseMs)
}

func TestProgressTrackerFallsBackWhenRowStoreErrors(t *testing.T) {
	rows := newFakeMinMaxStore()
	rows.err = assert.AnError
	cols := newFakeMinMaxStore()
	tracker := NewProgressTracker(rows, cols)

	fixedNow := time.UnixMilli(200 * 24 * 60 * 60 * 1000)
	tracker.now = func() time.Time { return fixedNow }

	p := tracker.Forward(context.Background(), "BTCUSDT", "binance", model.TimeFrame1m)

	wantEdge := model.TimeFrame1m.AlignDown(fixedNow.Add(-progressFallbackWindow).UnixMilli())
	assert.Equal(t, wantEdge, p.MinCloseMs, "a storage error is treated as no record, not propagated")
}
