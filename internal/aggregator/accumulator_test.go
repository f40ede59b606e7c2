package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestCandleAccumulatorFirstTradeOpensCandle(t *testing.T) {
	acc := NewCandleAccumulator("BTCUSDT", "binance", model.TimeFrame1m)
	closed := acc.Update(model.Trade{TimestampMs: 1_000, Price: 100, Size: 1})
	assert.Nil(t, closed)

	cur := acc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 100.0, cur.Open)
	assert.Equal(t, 100.0, cur.High)
	assert.Equal(t, 100.0, cur.Low)
	assert.Equal(t, 100.0, cur.Close)
	assert.Equal(t, int64(1), cur.NumTrades)
}

func TestCandleAccumulatorMergesWithinSamePeriod(t *testing.T) {
	acc := NewCandleAccumulator("BTCUSDT", "binance", model.TimeFrame1m)
	acc.Update(model.Trade{TimestampMs: 0, Price: 100, Size: 1})
	acc.Update(model.Trade{TimestampMs: 10_000, Price: 105, Size: 2})
	closed := acc.Update(model.Trade{TimestampMs: 20_000, Price: 95, Size: 1})
	assert.Nil(t, closed)

	cur := acc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 100.0, cur.Open)
	assert.Equal(t, 105.0, cur.High)
	assert.Equal(t, 95.0, cur.Low)
	assert.Equal(t, 95.0, cur.Close)
	assert.Equal(t, 4.0, cur.Volume)
	assert.Equal(t, int64(3), cur.NumTrades)
	assert.True(t, cur.Valid())
}

func TestCandleAccumulatorClosesOnBoundaryCross(t *testing.T) {
	acc := NewCandleAccumulator("BTCUSDT", "binance", model.TimeFrame1m)
	acc.Update(model.Trade{TimestampMs: 0, Price: 100, Size: 1})
	closed := acc.Update(model.Trade{TimestampMs: 60_000, Price: 110, Size: 1})

	require.NotNil(t, closed)
	assert.True(t, closed.Closed)
	assert.Equal(t, int64(0), closed.OpenTimeMs)
	assert.Equal(t, int64(60_000), closed.CloseTimeMs)
	assert.True(t, closed.Valid())

	cur := acc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, int64(60_000), cur.OpenTimeMs)
	assert.Equal(t, 110.0, cur.Open)
}

func TestCandleAccumulatorDropsLateTrade(t *testing.T) {
	acc := NewCandleAccumulator("BTCUSDT", "binance", model.TimeFrame1m)
	acc.Update(model.Trade{TimestampMs: 0, Price: 100, Size: 1})
	acc.Update(model.Trade{TimestampMs: 60_000, Price: 110, Size: 1})
	closed := acc.Update(model.Trade{TimestampMs: 30_000, Price: 999, Size: 1})

	assert.Nil(t, closed)
	cur := acc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 110.0, cur.Close, "late trade must not mutate the current candle")
}
