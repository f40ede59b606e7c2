package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

type stubFetcher struct {
	bars []model.Bar
	err  error
}

func (s *stubFetcher) FetchBars(ctx context.Context, symbol string, tf model.TimeFrame, startMs, endMs int64, limit int) ([]model.Bar, error) {
	return s.bars, s.err
}

func bar(openMs int64, period int64) model.Bar {
	return model.Bar{Candle: model.Candle{
		OpenTimeMs: openMs, CloseTimeMs: openMs + period - 1,
		Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, NumTrades: 1,
	}}
}

func TestFetcherAcceptsContiguousBars(t *testing.T) {
	period := model.TimeFrame1m.PeriodMS()
	stub := &stubFetcher{bars: []model.Bar{bar(0, period), bar(period, period), bar(2*period, period)}}
	f := NewFetcher(stub)

	bars, err := f.Fetch(context.Background(), model.ArchiveWindow{TimeFrame: model.TimeFrame1m})
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestFetcherKeepsBarsAcrossAGap(t *testing.T) {
	period := model.TimeFrame1m.PeriodMS()
	stub := &stubFetcher{bars: []model.Bar{bar(0, period), bar(3*period, period)}}
	f := NewFetcher(stub)

	bars, err := f.Fetch(context.Background(), model.ArchiveWindow{TimeFrame: model.TimeFrame1m})
	require.NoError(t, err)
	assert.Len(t, bars, 2, "a contiguity gap is logged, not discarded")
}

func TestFetcherRecordsGapOnTracker(t *testing.T) {
	period := model.TimeFrame1m.PeriodMS()
	stub := &stubFetcher{bars: []model.Bar{bar(0, period), bar(3*period, period)}}
	gaps := NewGapTracker()
	f := NewFetcher(stub).WithGapTracker(gaps)

	_, err := f.Fetch(context.Background(), model.ArchiveWindow{Symbol: "BTCUSDT", TimeFrame: model.TimeFrame1m})
	require.NoError(t, err)
	assert.Equal(t, 1, gaps.Snapshot()["BTCUSDT:1m"])
}

func TestFetcherEmptyResultIsNotAnError(t *testing.T) {
	stub := &stubFetcher{}
	f := NewFetcher(stub)

	bars, err := f.Fetch(context.Background(), model.ArchiveWindow{TimeFrame: model.TimeFrame1m})
	require.NoError(t, err)
	assert.Nil(t, bars)
}
