package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marketdata/ingestpipe/internal/model"
)

// Repository provides row-store access for hot-tier candles.
type Repository struct {
	db *DB
}

// NewRepository wraps db for row-store access.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// UpsertBars writes bars into market_klines_hot, overwriting any existing
// row for the same exchange/symbol/time_frame/open_time_ms. This makes a
// retried fetch idempotent.
func (r *Repository) UpsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO market_klines_hot (
				exchange, symbol, time_frame, open_time_ms, close_time_ms,
				open, high, low, close, volume,
				quote_volume, taker_buy_base_volume, taker_buy_quote_volume,
				num_trades, closed
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (exchange, symbol, time_frame, open_time_ms) DO UPDATE SET
				close_time_ms = EXCLUDED.close_time_ms,
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				quote_volume = EXCLUDED.quote_volume,
				taker_buy_base_volume = EXCLUDED.taker_buy_base_volume,
				taker_buy_quote_volume = EXCLUDED.taker_buy_quote_volume,
				num_trades = EXCLUDED.num_trades,
				closed = EXCLUDED.closed`,
			exchange, symbol, string(tf), b.OpenTimeMs, b.CloseTimeMs,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			b.QuoteVolume, b.TakerBuyBaseVolume, b.TakerBuyQuoteVolume,
			b.NumTrades, b.Closed,
		)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert bar %d/%d: %w", i+1, batch.Len(), err)
		}
	}
	return nil
}

// GetMinMaxCloseTime returns the oldest and newest closed candle on file
// for exchange/symbol/tf in the row store. ok is false when nothing has
// been recorded yet, which is how ProgressTracker detects an
// uninitialized series.
func (r *Repository) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	var minMs, maxMs, count int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(close_time_ms), 0), COALESCE(MAX(close_time_ms), 0), COUNT(*)
		FROM market_klines_hot
		WHERE exchange = $1 AND symbol = $2 AND time_frame = $3 AND closed = true`,
		exchange, symbol, string(tf),
	).Scan(&minMs, &maxMs, &count)
	if err != nil {
		return model.Progress{}, false, fmt.Errorf("get min/max close time: %w", err)
	}
	if count == 0 {
		return model.Progress{}, false, nil
	}
	return model.Progress{
		Symbol:     symbol,
		Exchange:   exchange,
		TimeFrame:  tf,
		MinCloseMs: minMs,
		MaxCloseMs: maxMs,
	}, true, nil
}
