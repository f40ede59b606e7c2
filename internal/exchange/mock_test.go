package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestMockFetcherRespectsLimit(t *testing.T) {
	m := NewMockFetcher()
	bars, err := m.FetchBars(context.Background(), "BTCUSDT", model.TimeFrame1m, 0, 1_000_000_000, 10)
	require.NoError(t, err)
	assert.Len(t, bars, 10)
}

func TestMockFetcherIsDeterministic(t *testing.T) {
	m := NewMockFetcher()
	a, _ := m.FetchBars(context.Background(), "ETHUSDT", model.TimeFrame1m, 0, 300_000, 100)
	b, _ := m.FetchBars(context.Background(), "ETHUSDT", model.TimeFrame1m, 0, 300_000, 100)
	assert.Equal(t, a, b)
	for _, bar := range a {
		assert.True(t, bar.Valid())
	}
}

func TestMockFetcherUnknownSymbolDefaultsBase(t *testing.T) {
	m := NewMockFetcher()
	bars, err := m.FetchBars(context.Background(), "FOOBAR", model.TimeFrame1m, 0, 60_000, 5)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 100.0, bars[0].Open, 1.0)
}
