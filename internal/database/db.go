// Package database wraps the PostgreSQL pool backing the row-store (hot)
// tier: recent candles and admin-surface queries. Archive progress is a
// derived read model computed from this tier's own min/max close times,
// never persisted separately.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketdata/ingestpipe/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB opens a connection pool and verifies connectivity.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.Default().WithComponent("database").WithField("database", cfg.Database).
		Info("connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.Default().WithComponent("database").Info("connection pool closed")
	}
}

// RunMigrations creates the row-store schema if it doesn't already exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	logging.Default().WithComponent("database").Info("running migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS market_klines_hot (
			exchange VARCHAR(32) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			time_frame VARCHAR(8) NOT NULL,
			open_time_ms BIGINT NOT NULL,
			close_time_ms BIGINT NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			quote_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			taker_buy_base_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			taker_buy_quote_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			num_trades BIGINT NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT true,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (exchange, symbol, time_frame, open_time_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_klines_hot_close_time
			ON market_klines_hot(exchange, symbol, time_frame, close_time_ms)`,
	}

	for _, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logging.Default().WithComponent("database").Info("migrations complete")
	return nil
}
