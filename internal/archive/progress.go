// Package archive drives the bidirectional backfill/catch-up pipeline:
// tracking how far each series has been archived, planning fetch
// windows, retrying fetches, and building dispatchable tasks.
package archive

import (
	"context"
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/sink"
)

// progressFallbackWindow and progressFallbackMinimum bound where an
// uninitialized series starts archiving from: 90 days back under normal
// conditions, 1 day back if even that alignment comes out non-positive.
const (
	progressFallbackWindow  = 90 * 24 * time.Hour
	progressFallbackMinimum = 24 * time.Hour
)

// ProgressTracker derives forward and backward archive progress per
// (symbol, exchange, time_frame) from whichever tier that direction
// actually writes to: forward from the row store (hot, recent), backward
// from the column store (cold, historical). Progress is a derived read
// model; it is never persisted on its own.
type ProgressTracker struct {
	rows    sink.RowStore
	columns sink.ColumnStore
	now     func() time.Time
}

// NewProgressTracker creates a tracker reading from rows and columns.
func NewProgressTracker(rows sink.RowStore, columns sink.ColumnStore) *ProgressTracker {
	return &ProgressTracker{rows: rows, columns: columns, now: time.Now}
}

// Forward returns the row store's current progress for the series. A
// storage error or an uninitialized series are both treated as "no
// record" and degrade to the seeded fallback edge, so a single flaky
// read never stalls the forward planner; the resulting task simply
// retries the same window next tick.
func (t *ProgressTracker) Forward(ctx context.Context, symbol, exchange string, tf model.TimeFrame) model.Progress {
	p, ok, err := t.rows.GetMinMaxCloseTime(ctx, exchange, symbol, tf)
	if err != nil {
		logging.Default().WithComponent("archive").WithError(err).WithField("symbol", symbol).
			WithField("exchange", exchange).Warn("row store progress lookup failed, falling back")
		return t.fallback(symbol, exchange, tf)
	}
	if ok {
		return p
	}
	return t.fallback(symbol, exchange, tf)
}

// Backward returns the column store's current progress for the series,
// degrading to fallback the same way as Forward on error or absence.
func (t *ProgressTracker) Backward(ctx context.Context, symbol, exchange string, tf model.TimeFrame) model.Progress {
	p, ok, err := t.columns.GetMinMaxCloseTime(ctx, exchange, symbol, tf)
	if err != nil {
		logging.Default().WithComponent("archive").WithError(err).WithField("symbol", symbol).
			WithField("exchange", exchange).Warn("column store progress lookup failed, falling back")
		return t.fallback(symbol, exchange, tf)
	}
	if ok {
		return p
	}
	return t.fallback(symbol, exchange, tf)
}

func (t *ProgressTracker) fallback(symbol, exchange string, tf model.TimeFrame) model.Progress {
	edge := t.fallbackEdge(tf)
	logging.Default().WithComponent("archive").WithField("symbol", symbol).
		WithField("exchange", exchange).WithField("timeframe", string(tf)).
		Info("no archive progress on file, seeding from fallback window")
	return model.Progress{Symbol: symbol, Exchange: exchange, TimeFrame: tf, MinCloseMs: edge, MaxCloseMs: edge}
}

func (t *ProgressTracker) fallbackEdge(tf model.TimeFrame) int64 {
	edge := tf.AlignDown(t.now().Add(-progressFallbackWindow).UnixMilli())
	if edge <= 0 {
		edge = tf.AlignDown(t.now().Add(-progressFallbackMinimum).UnixMilli())
	}
	return edge
}
