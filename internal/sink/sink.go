// Package sink persists archived bars to the row-store (hot, recent) and
// column-store (cold, full-history) tiers.
package sink

import (
	"context"

	"github.com/marketdata/ingestpipe/internal/model"
)

// RowStore is the hot-tier write surface, backed by PostgreSQL. It holds
// the forward (recent) bars per series for low-latency reads, upserted
// idempotently keyed by (exchange, symbol, time_frame, open_time_ms). Old
// rows are never pruned, so the table is not bounded to a recent window.
type RowStore interface {
	UpsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error
	GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error)
}

// ColumnStore is the cold-tier write surface, backed by ClickHouse. It
// holds the full backfilled history and serves analytical range queries,
// collapsing duplicate (exchange, symbol, time_frame, close_time) rows in
// favor of the newest write.
type ColumnStore interface {
	InsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error
	GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error)
	QueryRange(ctx context.Context, exchange, symbol string, tf model.TimeFrame, start, end int64, limit int, ascending bool) ([]model.Bar, error)
}

// Sink fans drained flush-buffer messages out to the row store (forward)
// or the column store (backward), grouping by series first since a
// drained batch is not scoped to a single symbol or time frame.
type Sink struct {
	Rows    RowStore
	Columns ColumnStore
}

// New builds a Sink routing by direction.
func New(rows RowStore, columns ColumnStore) *Sink {
	return &Sink{Rows: rows, Columns: columns}
}

// WriteForward upserts every message in msgs into the row store, one
// UpsertBars call per (exchange, symbol, time_frame) group.
func (s *Sink) WriteForward(ctx context.Context, msgs []model.KlineMessage) error {
	for key, bars := range groupBySeries(msgs) {
		if err := s.Rows.UpsertBars(ctx, key.exchange, key.symbol, key.tf, bars); err != nil {
			return err
		}
	}
	return nil
}

// WriteBackward inserts every message in msgs into the column store, one
// InsertBars call per (exchange, symbol, time_frame) group.
func (s *Sink) WriteBackward(ctx context.Context, msgs []model.KlineMessage) error {
	for key, bars := range groupBySeries(msgs) {
		if err := s.Columns.InsertBars(ctx, key.exchange, key.symbol, key.tf, bars); err != nil {
			return err
		}
	}
	return nil
}

type seriesKey struct {
	exchange string
	symbol   string
	tf       model.TimeFrame
}

func groupBySeries(msgs []model.KlineMessage) map[seriesKey][]model.Bar {
	out := make(map[seriesKey][]model.Bar)
	for _, msg := range msgs {
		key := seriesKey{exchange: msg.Exchange, symbol: msg.Symbol, tf: msg.TimeFrame}
		out[key] = append(out[key], msg.Bars...)
	}
	return out
}
