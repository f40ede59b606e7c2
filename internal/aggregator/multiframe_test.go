package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestMultiTimeFrameAggregatorDefaultFrames(t *testing.T) {
	signals := make(chan model.MaintenanceSignal, 16)
	agg := New(signals)

	agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: 100, Size: 1})

	for _, tf := range model.DefaultTimeFrames {
		c := agg.CurrentCandle("BTCUSDT", "binance", tf)
		require.NotNil(t, c, "expected candle for %s", tf)
		assert.Equal(t, 100.0, c.Open)
		assert.Equal(t, "binance", c.Exchange)
	}
}

func TestMultiTimeFrameAggregatorPerSymbolOverride(t *testing.T) {
	agg := New(nil)
	agg.SetTimeFrames("ETHUSDT", []model.TimeFrame{model.TimeFrame1m})

	agg.ProcessTrade("ETHUSDT", "binance", model.Trade{TimestampMs: 0, Price: 10, Size: 1})

	assert.NotNil(t, agg.CurrentCandle("ETHUSDT", "binance", model.TimeFrame1m))
	assert.Nil(t, agg.CurrentCandle("ETHUSDT", "binance", model.TimeFrame1h))
}

func TestMultiTimeFrameAggregatorKeepsExchangesSeparate(t *testing.T) {
	agg := New(nil)
	agg.SetTimeFrames("BTCUSDT", []model.TimeFrame{model.TimeFrame1m})

	agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: 100, Size: 1})

	assert.NotNil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame1m))
	assert.Nil(t, agg.CurrentCandle("BTCUSDT", "coinbase", model.TimeFrame1m), "a trade on one exchange must not open a candle on another")
}

func TestMultiTimeFrameAggregatorMergeTimeFramesUnionsAndDedupes(t *testing.T) {
	agg := New(nil)
	agg.SetTimeFrames("ETHUSDT", []model.TimeFrame{model.TimeFrame5m, model.TimeFrame1m})

	agg.MergeTimeFrames(map[string][]model.TimeFrame{
		"ETHUSDT": {model.TimeFrame1m, model.TimeFrame1h},
	})

	assert.Equal(t, []model.TimeFrame{model.TimeFrame1m, model.TimeFrame5m, model.TimeFrame1h}, agg.frameSets["ETHUSDT"])
}

func TestMultiTimeFrameAggregatorMergeTimeFramesStartsFromDefaults(t *testing.T) {
	agg := New(nil)

	agg.MergeTimeFrames(map[string][]model.TimeFrame{
		"BTCUSDT": {model.TimeFrame1w},
	})

	frames := agg.frameSets["BTCUSDT"]
	assert.Contains(t, frames, model.TimeFrame1w)
	for _, tf := range model.DefaultTimeFrames {
		assert.Contains(t, frames, tf)
	}
}

func TestMultiTimeFrameAggregatorEmitsSignalOnClose(t *testing.T) {
	signals := make(chan model.MaintenanceSignal, 16)
	agg := New(signals)
	agg.SetTimeFrames("BTCUSDT", []model.TimeFrame{model.TimeFrame1m})

	agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: 100, Size: 1})
	closed := agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 60_000, Price: 101, Size: 1})

	require.Len(t, closed, 1)
	require.Len(t, signals, 1)
	sig := <-signals
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, "binance", sig.Exchange)
	assert.Equal(t, model.TimeFrame1m, sig.TimeFrame)
}

func TestMultiTimeFrameAggregatorDropsInvalidTrade(t *testing.T) {
	agg := New(nil)
	closed := agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: -1, Size: 1})
	assert.Nil(t, closed)
	assert.Nil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame1m))
}

func TestMultiTimeFrameAggregatorRemoveSymbol(t *testing.T) {
	agg := New(nil)
	agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: 100, Size: 1})
	require.Contains(t, agg.Symbols(), "binance:BTCUSDT")

	agg.RemoveSymbol("BTCUSDT")
	assert.NotContains(t, agg.Symbols(), "binance:BTCUSDT")
	assert.Nil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame1m))
}
