// Command ingestd runs the market-data ingestion pipeline: a reconnecting
// trade-stream subscription feeding a multi-time-frame candle aggregator,
// a fair-scheduled archive backfill/catch-up pipeline, and an admin HTTP
// surface for health and log inspection.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketdata/ingestpipe/config"
	"github.com/marketdata/ingestpipe/internal/adminapi"
	"github.com/marketdata/ingestpipe/internal/aggregator"
	"github.com/marketdata/ingestpipe/internal/archive"
	"github.com/marketdata/ingestpipe/internal/buffer"
	"github.com/marketdata/ingestpipe/internal/cache"
	"github.com/marketdata/ingestpipe/internal/database"
	"github.com/marketdata/ingestpipe/internal/events"
	"github.com/marketdata/ingestpipe/internal/exchange"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/maintenance"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/ratelimit"
	"github.com/marketdata/ingestpipe/internal/scheduler"
	"github.com/marketdata/ingestpipe/internal/sink"
	"github.com/marketdata/ingestpipe/internal/tradefeed"
	"github.com/marketdata/ingestpipe/internal/worker"
)

// driverInterval is how often the archive driver sweeps every configured
// series for due forward/backward work, independent of live candle-close
// triggers.
const driverInterval = 30 * time.Second

// maintenanceSignalCapacity bounds the live aggregator's candle-close
// channel so a stalled maintenance worker cannot grow memory without
// bound; the aggregator's send is non-blocking, so signals that arrive
// while the channel is full are dropped.
const maintenanceSignalCapacity = 256

// cacheFlushSize and cacheFlushInterval are the kline cache's drain
// triggers: whichever of "this many pending bars" or "this much time" is
// reached first forces a drain into the column store.
const (
	cacheFlushSize     = 1000
	cacheFlushInterval = 20 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		Component:   "ingestd",
		IncludeFile: cfg.Logging.IncludeFile,
		JSONFormat:  cfg.Logging.JSONFormat,
	})
	logging.SetDefault(logger)
	logger.Info("starting ingestd")

	bus := events.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	if err := db.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run database migrations")
	}
	repo := database.NewRepository(db)

	columnStore, err := sink.NewClickHouseStore(ctx, cfg.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to ClickHouse")
	}
	defer columnStore.Close()
	if err := columnStore.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run ClickHouse migrations")
	}

	var klineCache *cache.KlineCache
	if cfg.Redis.Enabled {
		klineCache, err = cache.NewKlineCache(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize kline cache")
		}
		defer klineCache.Close()
	}

	dataSink := sink.New(repo, columnStore)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.BudgetPerMinute)
	var barFetcher exchange.BarFetcher
	if cfg.Exchange.MockMode {
		barFetcher = exchange.NewMockFetcher()
		logger.Warn("exchange mock mode enabled, archive backfill will use synthetic data")
	} else {
		barFetcher = exchange.NewClient(cfg.Exchange.BaseURL, limiter)
	}

	gapTracker := archive.NewGapTracker()
	fetcher := archive.NewFetcher(barFetcher).WithGapTracker(gapTracker)
	flushBuffer := buffer.New()
	flushCtrl := buffer.NewController(flushBuffer, func(ctx context.Context, dir model.ArchiveDirection, msgs []model.KlineMessage) error {
		switch dir {
		case model.DirectionForward:
			return dataSink.WriteForward(ctx, msgs)
		case model.DirectionBackward:
			return dataSink.WriteBackward(ctx, msgs)
		}
		return nil
	})
	runner := archive.NewRunner(fetcher, flushBuffer, flushCtrl)

	sched := scheduler.NewFairScheduler()
	pool := worker.New(runner, sched, bus)

	progress := archive.NewProgressTracker(repo, columnStore)
	planner := archive.NewWindowPlanner()
	taskBuilder := archive.NewTaskBuilder(progress, planner)
	driver := archive.NewDriver(taskBuilder, sched, cfg.Exchange.Name, cfg.Aggregator.Symbols, model.AllTimeFrames)

	maintenanceSignals := make(chan model.MaintenanceSignal, maintenanceSignalCapacity)
	agg := aggregator.New(maintenanceSignals)
	for _, symbol := range cfg.Aggregator.Symbols {
		if frames, ok := cfg.Aggregator.TimeFrameOverride[symbol]; ok {
			agg.SetTimeFrames(symbol, frames)
		}
	}
	if cfg.Aggregator.OverridesFile != "" {
		if err := aggregator.LoadSymbolOverrides(agg, cfg.Aggregator.OverridesFile); err != nil {
			logger.WithError(err).Warn("failed to load time frame overrides file")
		}
	}
	maintWorker := maintenance.New(maintenanceSignals, driver, bus)

	symbolSet := tradefeed.NewSymbolSet(cfg.Aggregator.Symbols...)
	feed := tradefeed.New(tradefeed.Config{BaseURL: cfg.Feed.BaseURL}, symbolSet, func(symbol string, t model.Trade) {
		closed := agg.ProcessTrade(symbol, cfg.Exchange.Name, t)
		for _, c := range closed {
			storeClosedCandle(ctx, klineCache, repo, c)
		}
	})

	adminSrv := adminapi.New(cfg.Server, bus)
	adminSrv.RegisterHealthCheck("database", repo)
	adminSrv.RegisterHealthCheck("clickhouse", columnStore)
	if klineCache != nil {
		adminSrv.RegisterHealthCheck("redis", klineCache)
	}
	adminSrv.RegisterGapTracker(gapTracker)

	pool.Start(ctx, cfg.Archive.WorkerCount)
	go driver.Run(ctx, driverInterval, pool.Dispatch)
	go maintWorker.Run(ctx)
	go flushCtrl.Run(ctx)
	if cfg.Feed.Enabled {
		go feed.Run(ctx)
	} else {
		logger.Warn("live trade feed disabled, aggregator will receive no trades; archive backfill still runs")
	}
	if klineCache != nil {
		flushLoop := cache.NewFlushLoop(klineCache, columnStore, cacheFlushSize, cacheFlushInterval)
		go flushLoop.Run(ctx)
	}

	go func() {
		if err := adminSrv.Start(); err != nil {
			logger.WithError(err).Error("admin server exited")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("admin server shutdown error")
	}

	pool.Close()
	pool.Wait()

	logger.Info("ingestd stopped")
}

// storeClosedCandle stages a freshly closed live candle in the kline
// cache for the column-store flush loop to pick up, falling back to a
// direct row-store write when the cache is unavailable so a closed
// candle is never silently dropped.
func storeClosedCandle(ctx context.Context, kc *cache.KlineCache, rows sink.RowStore, c model.Candle) {
	bar := model.Bar{Candle: c}

	if kc != nil {
		if err := kc.PushKline(ctx, c.Exchange, c.Symbol, c.TimeFrame, bar); err == nil {
			return
		}
	}

	if err := rows.UpsertBars(ctx, c.Exchange, c.Symbol, c.TimeFrame, []model.Bar{bar}); err != nil {
		logging.Default().WithComponent("ingestd").WithError(err).
			WithField("symbol", c.Symbol).WithField("exchange", c.Exchange).Error("failed to persist closed candle")
	}
}
