package cache

import (
	"context"
	"strings"
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// ColumnWriter is the cold-tier write surface a FlushLoop drains into.
// sink.ClickHouseStore satisfies this.
type ColumnWriter interface {
	InsertBars(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bars []model.Bar) error
}

// PendingCache is the subset of KlineCache a FlushLoop needs, narrowed to
// an interface so the drain logic can be tested without Redis.
type PendingCache interface {
	LenByPattern(ctx context.Context, pattern string) (int64, error)
	PopAllByPattern(ctx context.Context, pattern string) (map[string][]model.Bar, error)
}

// pollInterval is how often FlushLoop checks the size trigger; the time
// trigger fires on its own multiple of this.
const pollInterval = 1 * time.Second

// FlushLoop periodically drains the live kline cache into the column
// store, on whichever comes first: SizeThreshold pending bars across all
// series, or TimeThreshold elapsed since the last drain. There is no
// separate soft or hard timeout and no byte-size trigger: a shared Redis
// key scan has no per-series "quiet period" to debounce against, so one
// size threshold and one time threshold cover both cases.
type FlushLoop struct {
	cache   PendingCache
	columns ColumnWriter

	SizeThreshold int
	TimeThreshold time.Duration
}

// NewFlushLoop creates a FlushLoop with the given triggers.
func NewFlushLoop(cache PendingCache, columns ColumnWriter, sizeThreshold int, timeThreshold time.Duration) *FlushLoop {
	return &FlushLoop{
		cache:         cache,
		columns:       columns,
		SizeThreshold: sizeThreshold,
		TimeThreshold: timeThreshold,
	}
}

// Run blocks, polling the cache and draining it when a trigger fires,
// until ctx is cancelled.
func (f *FlushLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log := logging.Default().WithComponent("cache_flush_loop")
	lastFlush := time.Now()

	for {
		select {
		case <-ctx.Done():
			f.drain(context.Background(), log)
			return
		case <-ticker.C:
			n, err := f.cache.LenByPattern(ctx, "kline:*")
			if err != nil {
				log.WithError(err).Warn("failed to check pending kline count")
				continue
			}

			if int(n) >= f.SizeThreshold || time.Since(lastFlush) >= f.TimeThreshold {
				f.drain(ctx, log)
				lastFlush = time.Now()
			}
		}
	}
}

func (f *FlushLoop) drain(ctx context.Context, log *logging.Logger) {
	byKey, err := f.cache.PopAllByPattern(ctx, "kline:*")
	if err != nil {
		log.WithError(err).Warn("failed to drain kline cache")
		return
	}

	for key, bars := range byKey {
		if len(bars) == 0 {
			continue
		}
		exchange, symbol, tf, ok := parseKlineKey(key)
		if !ok {
			log.WithField("key", key).Warn("dropping unparseable cache key")
			continue
		}
		if err := f.columns.InsertBars(ctx, exchange, symbol, tf, bars); err != nil {
			log.WithError(err).WithField("symbol", symbol).WithField("exchange", exchange).
				Error("failed to flush cached klines to column store")
			continue
		}
		log.WithField("symbol", symbol).WithField("exchange", exchange).WithField("timeframe", string(tf)).
			WithField("count", len(bars)).Debug("flushed cached klines")
	}
}

// parseKlineKey parses a "kline:{exchange}:{symbol}:{time_frame}" cache
// key into its parts.
func parseKlineKey(key string) (exchange, symbol string, tf model.TimeFrame, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "kline" {
		return "", "", "", false
	}
	return parts[1], parts[2], model.TimeFrame(parts[3]), true
}
