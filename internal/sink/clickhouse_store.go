package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// ClickHouseConfig holds connection settings for the column-store tier.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
}

// ClickHouseStore is the ColumnStore implementation backing full-history
// backfill writes.
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore opens a connection to the column store and verifies
// it with a ping.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	logging.Default().WithComponent("clickhouse").WithField("database", cfg.Database).
		Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn}, nil
}

// RunMigrations creates the column-store schema if it doesn't exist.
// ReplacingMergeTree's version column is updated_at: on a merge, the row
// with the newest updated_at wins, so a late re-archive of the same
// candle overwrites rather than duplicates it.
func (s *ClickHouseStore) RunMigrations(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS market_klines_cold (
			exchange String,
			symbol String,
			time_frame String,
			open_time_ms Int64,
			close_time_ms Int64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			quote_volume Float64,
			taker_buy_base_volume Float64,
			taker_buy_quote_volume Float64,
			num_trades Int64,
			updated_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (exchange, symbol, time_frame, close_time_ms)`)
}

// InsertBars appends bars to the column store. ReplacingMergeTree collapses
// duplicate (exchange, symbol, time_frame, close_time_ms) rows on
// background merges in favor of the newest updated_at, so a retried
// backfill window is safe to insert twice.
func (s *ClickHouseStore) InsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO market_klines_cold")
	if err != nil {
		return fmt.Errorf("clickhouse prepare batch: %w", err)
	}

	now := time.Now()
	for _, b := range bars {
		if err := batch.Append(
			exchange, symbol, string(tf), b.OpenTimeMs, b.CloseTimeMs,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			b.QuoteVolume, b.TakerBuyBaseVolume, b.TakerBuyQuoteVolume,
			b.NumTrades, now,
		); err != nil {
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse send batch: %w", err)
	}
	return nil
}

// GetMinMaxCloseTime returns the oldest and newest closed bar on file for
// exchange/symbol/tf in the column store. ok is false when nothing has
// been archived yet.
func (s *ClickHouseStore) GetMinMaxCloseTime(ctx context.Context, exchange, symbol string, tf model.TimeFrame) (model.Progress, bool, error) {
	var minMs, maxMs, count int64
	row := s.conn.QueryRow(ctx, `
		SELECT min(close_time_ms), max(close_time_ms), count()
		FROM market_klines_cold FINAL
		WHERE exchange = ? AND symbol = ? AND time_frame = ?`,
		exchange, symbol, string(tf),
	)
	if err := row.Scan(&minMs, &maxMs, &count); err != nil {
		return model.Progress{}, false, fmt.Errorf("clickhouse min/max close time: %w", err)
	}
	if count == 0 {
		return model.Progress{}, false, nil
	}
	return model.Progress{
		Symbol:    symbol,
		Exchange:  exchange,
		TimeFrame: tf,
		MinCloseMs: minMs,
		MaxCloseMs: maxMs,
	}, true, nil
}

// QueryRange reads archived bars for exchange/symbol/tf within
// [start, end], ordered by close_time_ms ascending or descending per
// ascending, and capped at limit rows.
func (s *ClickHouseStore) QueryRange(ctx context.Context, exchange, symbol string, tf model.TimeFrame, start, end int64, limit int, ascending bool) ([]model.Bar, error) {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}

	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT open_time_ms, close_time_ms, open, high, low, close, volume,
			quote_volume, taker_buy_base_volume, taker_buy_quote_volume, num_trades
		FROM market_klines_cold FINAL
		WHERE exchange = ? AND symbol = ? AND time_frame = ?
			AND close_time_ms >= ? AND close_time_ms <= ?
		ORDER BY close_time_ms %s
		LIMIT ?`, order),
		exchange, symbol, string(tf), start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query range: %w", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(
			&b.OpenTimeMs, &b.CloseTimeMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.QuoteVolume, &b.TakerBuyBaseVolume, &b.TakerBuyQuoteVolume, &b.NumTrades,
		); err != nil {
			return nil, fmt.Errorf("clickhouse scan row: %w", err)
		}
		b.Symbol = symbol
		b.Exchange = exchange
		b.TimeFrame = tf
		b.Closed = true
		out = append(out, b)
	}
	return out, rows.Err()
}

// HealthCheck pings the column store.
func (s *ClickHouseStore) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the underlying connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
