package model

// Candle is one OHLCV bucket for a symbol/time-frame pair, as produced by
// the live aggregator.
type Candle struct {
	Symbol      string
	Exchange    string
	TimeFrame   TimeFrame
	OpenTimeMs  int64
	CloseTimeMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	NumTrades   int64
	Closed      bool
}

// Valid reports whether the candle satisfies the pipeline's OHLCV
// invariants: low <= min(open, close) <= max(open, close) <= high,
// num_trades >= 1, close_time_ms >= open_time_ms, volume >= 0.
func (c Candle) Valid() bool {
	if c.CloseTimeMs < c.OpenTimeMs {
		return false
	}
	if c.NumTrades < 1 {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || hi > c.High {
		return false
	}
	return true
}

// Bar is a Candle enriched with the quote-asset statistics the archiver
// fetches from an exchange's historical kline endpoint. Live-aggregated
// candles never populate these fields; only archived bars do.
type Bar struct {
	Candle
	QuoteVolume          float64
	TakerBuyBaseVolume   float64
	TakerBuyQuoteVolume  float64
}
