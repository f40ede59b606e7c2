package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marketdata/ingestpipe/internal/adminapi"
	"github.com/marketdata/ingestpipe/internal/cache"
	"github.com/marketdata/ingestpipe/internal/database"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/sink"
)

// Config is the process-wide configuration for the ingestion daemon,
// assembled from environment variables with defaults suitable for local
// development.
type Config struct {
	Logging   LoggingConfig
	Server    adminapi.Config
	Database  database.Config
	ClickHouse sink.ClickHouseConfig
	Redis     cache.Config
	Exchange  ExchangeConfig
	Feed      FeedConfig
	RateLimit RateLimitConfig
	Archive   ArchiveConfig
	Aggregator AggregatorConfig
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string
	Output      string
	JSONFormat  bool
	IncludeFile bool
}

// ExchangeConfig controls the REST kline backfill client.
type ExchangeConfig struct {
	Name     string // identifies the exchange in stored rows, e.g. "binance"
	BaseURL  string
	MockMode bool // use the deterministic synthetic fetcher instead of a real exchange
}

// FeedConfig controls the live public-trade WebSocket subscription.
type FeedConfig struct {
	BaseURL string
	Enabled bool
}

// RateLimitConfig controls the REST client's request budget.
type RateLimitConfig struct {
	BudgetPerMinute int
}

// ArchiveConfig controls the scheduler and worker pool driving backfill.
type ArchiveConfig struct {
	WorkerCount int
}

// AggregatorConfig lists the symbols to ingest and any per-symbol time
// frame overrides; symbols without an override get model.DefaultTimeFrames.
type AggregatorConfig struct {
	Symbols           []string
	TimeFrameOverride map[string][]model.TimeFrame
	// OverridesFile is an optional YAML seed applied on top of
	// TimeFrameOverride at startup; a missing file is not an error.
	OverridesFile string
}

// Load builds a Config from environment variables, applying defaults for
// anything unset. It does not validate exchange or database reachability;
// that happens when the corresponding client connects.
func Load() (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:       getEnvOrDefault("LOG_LEVEL", "INFO"),
			Output:      getEnvOrDefault("LOG_OUTPUT", "stdout"),
			JSONFormat:  getEnvBoolOrDefault("LOG_JSON", true),
			IncludeFile: getEnvBoolOrDefault("LOG_INCLUDE_FILE", false),
		},
		Server: adminapi.Config{
			Host:            getEnvOrDefault("ADMIN_HOST", "0.0.0.0"),
			Port:            getEnvIntOrDefault("ADMIN_PORT", 8090),
			AllowedOrigins:  strings.Split(getEnvOrDefault("ADMIN_ALLOWED_ORIGINS", "*"), ","),
			ReadTimeout:     getEnvDurationOrDefault("ADMIN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDurationOrDefault("ADMIN_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDurationOrDefault("ADMIN_SHUTDOWN_TIMEOUT", 10*time.Second),
			LogBufferSize:   getEnvIntOrDefault("ADMIN_LOG_BUFFER_SIZE", 2000),
		},
		Database: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnvOrDefault("DB_NAME", "marketdata"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		ClickHouse: sink.ClickHouseConfig{
			Addr:     getEnvOrDefault("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnvOrDefault("CLICKHOUSE_DB", "marketdata"),
			User:     getEnvOrDefault("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		Redis: cache.Config{
			Enabled:  getEnvBoolOrDefault("REDIS_ENABLED", true),
			Address:  getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
			PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10),
		},
		Exchange: ExchangeConfig{
			Name:     strings.ToLower(getEnvOrDefault("EXCHANGE_NAME", "binance")),
			BaseURL:  getEnvOrDefault("EXCHANGE_BASE_URL", "https://api.binance.com"),
			MockMode: getEnvBoolOrDefault("EXCHANGE_MOCK_MODE", false),
		},
		Feed: FeedConfig{
			BaseURL: getEnvOrDefault("FEED_BASE_URL", "wss://stream.binance.com:9443/stream"),
			Enabled: getEnvBoolOrDefault("FEED_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			BudgetPerMinute: getEnvIntOrDefault("RATE_LIMIT_BUDGET", 2400),
		},
		Archive: ArchiveConfig{
			WorkerCount: getEnvIntOrDefault("ARCHIVE_WORKER_COUNT", 4),
		},
		Aggregator: AggregatorConfig{
			Symbols:           parseSymbolList(getEnvOrDefault("SYMBOLS", "BTCUSDT,ETHUSDT")),
			TimeFrameOverride: make(map[string][]model.TimeFrame),
			OverridesFile:     getEnvOrDefault("TIMEFRAME_OVERRIDES_FILE", "config/timeframes.yaml"),
		},
	}

	if cfg.Database.Password == "" && !getEnvBoolOrDefault("DB_ALLOW_EMPTY_PASSWORD", false) {
		return nil, fmt.Errorf("config: DB_PASSWORD is required (set DB_ALLOW_EMPTY_PASSWORD=true to override)")
	}

	return cfg, nil
}

func parseSymbolList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
