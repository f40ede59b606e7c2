// Package cache provides a Redis-backed staging area for freshly closed
// candles, decoupling the aggregator's hot path from the row store's
// write latency.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Enabled  bool
}

// keyPattern is the Redis key layout for a series' pending kline list:
// kline:{exchange}:{symbol}:{timeframe}.
const keyPattern = "kline:%s:%s:%s"

// DefaultTTL bounds how long a pending list can sit unconsumed before
// Redis reclaims it, as a backstop against a stalled flush path.
const DefaultTTL = 6 * time.Hour

// KlineCache buffers closed bars in Redis lists with graceful
// degradation: when Redis is unhealthy, calls fail fast instead of
// blocking so the caller can fall back to writing straight to storage.
type KlineCache struct {
	client *redis.Client

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewKlineCache connects to Redis and verifies connectivity. It returns
// a cache in degraded mode (not an error) if the initial ping fails,
// since the pipeline should keep running without Redis.
func NewKlineCache(cfg Config) (*KlineCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	kc := &KlineCache{
		client:        client,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := logging.Default().WithComponent("cache")
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("initial Redis connection failed, starting in degraded mode")
		return kc, nil
	}

	kc.healthy = true
	kc.lastCheck = time.Now()
	log.WithField("address", cfg.Address).Info("connected to Redis")
	return kc, nil
}

// IsHealthy reports whether Redis is currently considered available.
func (kc *KlineCache) IsHealthy() bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.healthy
}

func (kc *KlineCache) recordFailure() {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.failureCount++
	if kc.failureCount >= kc.maxFailures && kc.healthy {
		logging.Default().WithComponent("cache").WithField("failures", kc.failureCount).
			Warn("circuit breaker open: Redis marked unhealthy")
	}
	if kc.failureCount >= kc.maxFailures {
		kc.healthy = false
	}
}

func (kc *KlineCache) recordSuccess() {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if !kc.healthy {
		logging.Default().WithComponent("cache").Info("circuit breaker closed: Redis recovered")
	}
	kc.healthy = true
	kc.failureCount = 0
	kc.lastCheck = time.Now()
}

func (kc *KlineCache) checkHealth(ctx context.Context) {
	kc.mu.RLock()
	shouldCheck := !kc.healthy && time.Since(kc.lastCheck) >= kc.checkInterval
	kc.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := kc.client.Ping(pingCtx).Err(); err == nil {
			kc.recordSuccess()
		}
	}()
}

// PushKline appends a bar to the pending list for exchange/symbol/tf.
func (kc *KlineCache) PushKline(ctx context.Context, exchange, symbol string, tf model.TimeFrame, bar model.Bar) error {
	kc.checkHealth(ctx)
	if !kc.IsHealthy() {
		return ErrCacheUnavailable
	}

	data, err := json.Marshal(bar)
	if err != nil {
		return fmt.Errorf("marshal bar: %w", err)
	}

	key := fmt.Sprintf(keyPattern, exchange, symbol, tf)
	pipe := kc.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, DefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		kc.recordFailure()
		return fmt.Errorf("push kline: %w", err)
	}

	kc.recordSuccess()
	return nil
}

// LenByPattern sums the length of every pending list matching pattern,
// e.g. "kline:*:1m" for every symbol at one time frame.
func (kc *KlineCache) LenByPattern(ctx context.Context, pattern string) (int64, error) {
	kc.checkHealth(ctx)
	if !kc.IsHealthy() {
		return 0, ErrCacheUnavailable
	}

	var total int64
	iter := kc.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := kc.client.LLen(ctx, iter.Val()).Result()
		if err != nil {
			kc.recordFailure()
			return 0, fmt.Errorf("llen %s: %w", iter.Val(), err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		kc.recordFailure()
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}

	kc.recordSuccess()
	return total, nil
}

// PopAllByPattern atomically drains every pending list matching pattern
// and decodes the bars it held, keyed by the Redis key they came from.
// Each list is read and deleted in one MULTI/EXEC transaction, so a bar
// pushed concurrently is either drained or left for the next call.
func (kc *KlineCache) PopAllByPattern(ctx context.Context, pattern string) (map[string][]model.Bar, error) {
	kc.checkHealth(ctx)
	if !kc.IsHealthy() {
		return nil, ErrCacheUnavailable
	}

	out := make(map[string][]model.Bar)
	iter := kc.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		pipe := kc.client.TxPipeline()
		lrange := pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			kc.recordFailure()
			return nil, fmt.Errorf("drain %s: %w", key, err)
		}
		raw := lrange.Val()

		bars := make([]model.Bar, 0, len(raw))
		for _, item := range raw {
			var b model.Bar
			if err := json.Unmarshal([]byte(item), &b); err != nil {
				return nil, fmt.Errorf("unmarshal bar from %s: %w", key, err)
			}
			bars = append(bars, b)
		}
		out[key] = bars
	}
	if err := iter.Err(); err != nil {
		kc.recordFailure()
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}

	kc.recordSuccess()
	return out, nil
}

// HealthCheck reports the cache's current circuit-breaker state.
func (kc *KlineCache) HealthCheck(ctx context.Context) error {
	if !kc.IsHealthy() {
		return ErrCacheUnavailable
	}
	return nil
}

// Close releases the underlying Redis client.
func (kc *KlineCache) Close() error {
	return kc.client.Close()
}
