package aggregator

import "github.com/marketdata/ingestpipe/internal/model"

// CandleAccumulator builds one symbol/time-frame candle at a time from a
// stream of trades, emitting the finished candle when a trade crosses
// into the next period boundary.
type CandleAccumulator struct {
	symbol   string
	exchange string
	tf       model.TimeFrame
	open     *model.Candle
}

// NewCandleAccumulator creates an accumulator for symbol on exchange at
// the given time frame. It holds no candle until the first trade
// arrives.
func NewCandleAccumulator(symbol, exchange string, tf model.TimeFrame) *CandleAccumulator {
	return &CandleAccumulator{symbol: symbol, exchange: exchange, tf: tf}
}

// Update folds a trade into the current candle. If the trade's aligned
// period boundary is later than the open candle's, the open candle is
// closed and returned alongside the newly started one; closed is nil on
// the first trade of a fresh accumulator and on every subsequent update
// that lands within the same period.
func (a *CandleAccumulator) Update(t model.Trade) (closed *model.Candle) {
	openTime := a.tf.AlignDown(t.TimestampMs)

	if a.open == nil {
		a.open = a.newCandle(openTime, t)
		return nil
	}

	if openTime == a.open.OpenTimeMs {
		a.mergeTrade(t)
		return nil
	}

	if openTime < a.open.OpenTimeMs {
		// Late or out-of-order trade for an already-closed period; the
		// live path drops it rather than reopening a closed candle.
		return nil
	}

	finished := a.open
	finished.Closed = true
	finished.CloseTimeMs = finished.OpenTimeMs + a.tf.PeriodMS()
	a.open = a.newCandle(openTime, t)
	return finished
}

// Current returns the in-progress candle, or nil if no trade has
// arrived yet. The returned value is a copy; callers must not rely on it
// staying in sync with further updates.
func (a *CandleAccumulator) Current() *model.Candle {
	if a.open == nil {
		return nil
	}
	c := *a.open
	return &c
}

func (a *CandleAccumulator) newCandle(openTime int64, t model.Trade) *model.Candle {
	return &model.Candle{
		Symbol:      a.symbol,
		Exchange:    a.exchange,
		TimeFrame:   a.tf,
		OpenTimeMs:  openTime,
		CloseTimeMs: openTime + a.tf.PeriodMS(),
		Open:        t.Price,
		High:        t.Price,
		Low:         t.Price,
		Close:       t.Price,
		Volume:      t.Size,
		NumTrades:   1,
	}
}

func (a *CandleAccumulator) mergeTrade(t model.Trade) {
	c := a.open
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Size
	c.NumTrades++
}
