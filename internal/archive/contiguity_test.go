package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestCheckContiguityFindsGapIndex(t *testing.T) {
	tf := model.TimeFrame1m
	period := tf.PeriodMS()
	bars := []model.Bar{
		{Candle: model.Candle{OpenTimeMs: 0, CloseTimeMs: period - 1}},
		{Candle: model.Candle{OpenTimeMs: period, CloseTimeMs: 2*period - 1}},
		{Candle: model.Candle{OpenTimeMs: 3 * period, CloseTimeMs: 4*period - 1}}, // gap: skipped a period
	}

	report := CheckContiguity(bars, tf)
	assert.Equal(t, []int{2}, report.Indices)
	assert.False(t, report.Empty())
}

func TestCheckContiguityEmptyWhenContiguous(t *testing.T) {
	tf := model.TimeFrame1m
	period := tf.PeriodMS()
	bars := []model.Bar{
		{Candle: model.Candle{OpenTimeMs: 0}},
		{Candle: model.Candle{OpenTimeMs: period}},
		{Candle: model.Candle{OpenTimeMs: 2 * period}},
	}

	assert.True(t, CheckContiguity(bars, tf).Empty())
}

func TestGapTrackerSnapshotIsACopy(t *testing.T) {
	g := NewGapTracker()
	g.Record("BTCUSDT", model.TimeFrame1m, GapReport{Indices: []int{1, 2}})

	snap := g.Snapshot()
	assert.Equal(t, 2, snap["BTCUSDT:1m"])

	snap["BTCUSDT:1m"] = 99
	assert.Equal(t, 2, g.Snapshot()["BTCUSDT:1m"], "mutating the returned snapshot must not affect internal state")
}
