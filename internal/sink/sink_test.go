package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

type fakeRowStore struct {
	upserted []model.Bar
}

func (f *fakeRowStore) UpsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	f.upserted = append(f.upserted, bars...)
	return nil
}

func (f *fakeRowStore) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	return model.Progress{}, false, nil
}

type fakeColumnStore struct {
	inserted []model.Bar
}

func (f *fakeColumnStore) InsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	f.inserted = append(f.inserted, bars...)
	return nil
}

func (f *fakeColumnStore) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	return model.Progress{}, false, nil
}

func (f *fakeColumnStore) QueryRange(ctx context.Context, exchange, symbol string, tf model.TimeFrame, start, end int64, limit int, ascending bool) ([]model.Bar, error) {
	return nil, nil
}

func kline(symbol string, tf model.TimeFrame, dir model.ArchiveDirection, n int) model.KlineMessage {
	bars := make([]model.Bar, n)
	return model.KlineMessage{Bars: bars, Symbol: symbol, Exchange: "binance", TimeFrame: tf, Direction: dir}
}

func TestSinkWriteForwardGroupsBySeriesIntoRowStore(t *testing.T) {
	rows := &fakeRowStore{}
	cols := &fakeColumnStore{}
	s := New(rows, cols)

	err := s.WriteForward(context.Background(), []model.KlineMessage{
		kline("BTCUSDT", model.TimeFrame1m, model.DirectionForward, 1),
		kline("BTCUSDT", model.TimeFrame1m, model.DirectionForward, 1),
	})
	require.NoError(t, err)
	assert.Len(t, rows.upserted, 2)
	assert.Empty(t, cols.inserted)
}

func TestSinkWriteBackwardGroupsBySeriesIntoColumnStore(t *testing.T) {
	rows := &fakeRowStore{}
	cols := &fakeColumnStore{}
	s := New(rows, cols)

	err := s.WriteBackward(context.Background(), []model.KlineMessage{
		kline("BTCUSDT", model.TimeFrame1d, model.DirectionBackward, 2),
	})
	require.NoError(t, err)
	assert.Len(t, cols.inserted, 2)
	assert.Empty(t, rows.upserted)
}

func TestSinkWriteForwardSeparatesSeries(t *testing.T) {
	rows := &fakeRowStore{}
	cols := &fakeColumnStore{}
	s := New(rows, cols)

	err := s.WriteForward(context.Background(), []model.KlineMessage{
		kline("BTCUSDT", model.TimeFrame1m, model.DirectionForward, 1),
		kline("ETHUSDT", model.TimeFrame1m, model.DirectionForward, 1),
	})
	require.NoError(t, err)
	assert.Len(t, rows.upserted, 2)
}
