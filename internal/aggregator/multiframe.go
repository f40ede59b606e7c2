// Package aggregator builds OHLCV candles from a live trade stream across
// many symbols and time frames concurrently.
package aggregator

import (
	"sort"
	"strings"
	"sync"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// MultiTimeFrameAggregator fans a per-symbol trade stream out into one
// CandleAccumulator per configured time frame. It is safe for concurrent
// use by multiple trade-stream consumers, one per symbol.
type MultiTimeFrameAggregator struct {
	mu        sync.RWMutex
	bySymbol  map[string]map[model.TimeFrame]*CandleAccumulator
	frameSets map[string][]model.TimeFrame
	signals   chan<- model.MaintenanceSignal
}

// seriesKey identifies one exchange's accumulator set for a symbol.
// Per-symbol time-frame overrides are exchange-agnostic: they configure
// what to track for a symbol regardless of which exchange it trades on.
func seriesKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// New creates an aggregator that emits a MaintenanceSignal on signals
// every time a candle closes. signals may be nil, in which case closed
// candles are only returned from ProcessTrade and no signal is emitted;
// the channel send is non-blocking so a slow maintenance worker never
// backs up the hot trade path.
func New(signals chan<- model.MaintenanceSignal) *MultiTimeFrameAggregator {
	return &MultiTimeFrameAggregator{
		bySymbol:  make(map[string]map[model.TimeFrame]*CandleAccumulator),
		frameSets: make(map[string][]model.TimeFrame),
		signals:   signals,
	}
}

// SetTimeFrames registers a per-symbol time-frame override, replacing any
// existing one outright. Symbols with no override use
// model.DefaultTimeFrames. The override is read only when a series'
// accumulator set is first created, so calling this after trades have
// already been processed for the symbol changes nothing for that series.
func (a *MultiTimeFrameAggregator) SetTimeFrames(symbol string, frames []model.TimeFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameSets[symbol] = frames
}

// MergeTimeFrames folds mapping into the aggregator's per-symbol time
// frames: each symbol's new list is unioned with whatever is already
// configured (or model.DefaultTimeFrames if nothing is), deduplicated,
// and sorted by period ascending. Unlike SetTimeFrames, existing entries
// are never dropped, only added to.
func (a *MultiTimeFrameAggregator) MergeTimeFrames(mapping map[string][]model.TimeFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for symbol, frames := range mapping {
		existing, ok := a.frameSets[symbol]
		if !ok {
			existing = model.DefaultTimeFrames
		}
		a.frameSets[symbol] = unionSortedTimeFrames(existing, frames)
	}
}

func unionSortedTimeFrames(a, b []model.TimeFrame) []model.TimeFrame {
	seen := make(map[model.TimeFrame]struct{}, len(a)+len(b))
	out := make([]model.TimeFrame, 0, len(a)+len(b))
	for _, tf := range a {
		if _, ok := seen[tf]; !ok {
			seen[tf] = struct{}{}
			out = append(out, tf)
		}
	}
	for _, tf := range b {
		if _, ok := seen[tf]; !ok {
			seen[tf] = struct{}{}
			out = append(out, tf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodMS() < out[j].PeriodMS() })
	return out
}

// RemoveSymbol drops all accumulators for a symbol, e.g. when a symbol is
// delisted or unsubscribed. In-progress candles are discarded without
// closing them.
func (a *MultiTimeFrameAggregator) RemoveSymbol(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.bySymbol {
		if key == symbol || strings.HasSuffix(key, ":"+symbol) {
			delete(a.bySymbol, key)
		}
	}
	delete(a.frameSets, symbol)
}

// ProcessTrade folds a trade into every time-frame accumulator configured
// for symbol on exchange, creating accumulators lazily on first use. It
// returns the candles that closed as a result of this trade, one per
// time frame at most, and emits a MaintenanceSignal for each.
func (a *MultiTimeFrameAggregator) ProcessTrade(symbol, exchange string, t model.Trade) []model.Candle {
	if !t.Valid() {
		logging.Default().WithComponent("aggregator").WithField("symbol", symbol).
			WithField("exchange", exchange).Warn("dropping malformed trade")
		return nil
	}

	accs := a.accumulatorsFor(symbol, exchange)

	var closed []model.Candle
	for tf, acc := range accs {
		if c := acc.Update(t); c != nil {
			closed = append(closed, *c)
			a.emitSignal(model.MaintenanceSignal{Symbol: symbol, Exchange: exchange, TimeFrame: tf, CloseMs: c.CloseTimeMs})
		}
	}
	return closed
}

// accumulatorsFor returns the symbol/exchange's accumulator set, creating
// it under the write lock on first use. An existing set is returned as is;
// time frames added to the symbol later are not added to it.
func (a *MultiTimeFrameAggregator) accumulatorsFor(symbol, exchange string) map[model.TimeFrame]*CandleAccumulator {
	key := seriesKey(exchange, symbol)

	a.mu.RLock()
	accs, ok := a.bySymbol[key]
	a.mu.RUnlock()
	if ok {
		return accs
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if accs, ok := a.bySymbol[key]; ok {
		return accs
	}

	frames, ok := a.frameSets[symbol]
	if !ok {
		frames = model.DefaultTimeFrames
	}

	accs = make(map[model.TimeFrame]*CandleAccumulator, len(frames))
	for _, tf := range frames {
		accs[tf] = NewCandleAccumulator(symbol, exchange, tf)
	}
	a.bySymbol[key] = accs
	return accs
}

func (a *MultiTimeFrameAggregator) emitSignal(sig model.MaintenanceSignal) {
	if a.signals == nil {
		return
	}
	select {
	case a.signals <- sig:
	default:
		logging.Default().WithComponent("aggregator").
			WithField("symbol", sig.Symbol).WithField("timeframe", string(sig.TimeFrame)).
			Warn("maintenance signal channel full, dropping")
	}
}

// CurrentCandle returns the in-progress candle for symbol/exchange/tf, or
// nil if none exists yet.
func (a *MultiTimeFrameAggregator) CurrentCandle(symbol, exchange string, tf model.TimeFrame) *model.Candle {
	a.mu.RLock()
	accs, ok := a.bySymbol[seriesKey(exchange, symbol)]
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	acc, ok := accs[tf]
	if !ok {
		return nil
	}
	return acc.Current()
}

// Symbols returns the set of exchange:symbol series with at least one
// accumulator.
func (a *MultiTimeFrameAggregator) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.bySymbol))
	for s := range a.bySymbol {
		out = append(out, s)
	}
	return out
}
