package exchange

import (
	"context"
	"math"
	"sync"

	"github.com/marketdata/ingestpipe/internal/model"
)

// MockFetcher generates a deterministic synthetic price walk per symbol,
// for development and tests that need a BarFetcher without a network
// dependency. It never errors and never rate limits.
type MockFetcher struct {
	mu          sync.Mutex
	basePrices  map[string]float64
}

// NewMockFetcher creates a MockFetcher seeded with realistic base prices
// for a handful of common symbols; unknown symbols default to 100.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		basePrices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"BNBUSDT": 710.00,
			"SOLUSDT": 220.00,
		},
	}
}

// FetchBars synthesizes bars covering [startMs, endMs) at tf's period,
// capped at limit. The walk is a deterministic function of open time so
// repeated calls for the same window return identical data.
func (m *MockFetcher) FetchBars(ctx context.Context, symbol string, tf model.TimeFrame, startMs, endMs int64, limit int) ([]model.Bar, error) {
	m.mu.Lock()
	base, ok := m.basePrices[symbol]
	m.mu.Unlock()
	if !ok {
		base = 100.0
	}

	period := tf.PeriodMS()
	var bars []model.Bar
	for t := startMs; t < endMs && len(bars) < limit; t += period {
		price := base * (1 + 0.001*math.Sin(float64(t)/float64(period)))
		bars = append(bars, model.Bar{
			Candle: model.Candle{
				Symbol:      symbol,
				TimeFrame:   tf,
				OpenTimeMs:  t,
				CloseTimeMs: t + period - 1,
				Open:        price,
				High:        price * 1.001,
				Low:         price * 0.999,
				Close:       price,
				Volume:      10,
				NumTrades:   1,
				Closed:      true,
			},
			QuoteVolume:         price * 10,
			TakerBuyBaseVolume:  5,
			TakerBuyQuoteVolume: price * 5,
		})
	}
	return bars, nil
}
