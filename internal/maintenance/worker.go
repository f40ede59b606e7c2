// Package maintenance coalesces per-candle-close signals from the live
// aggregator into periodic archive-task enqueues.
//
// The aggregator closes candles far more often than the row store needs
// to be refreshed — a busy symbol at 1m closes a candle every minute
// across several time frames. Spawning a maintenance task per closed
// candle would hammer the scheduler, so instead each close only updates
// an in-memory "latest seen" map; a debounce window batches those
// updates into one archive-task enqueue per series, letting the normal
// fetch-then-persist-then-advance archive pipeline do the actual work.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/marketdata/ingestpipe/internal/archive"
	"github.com/marketdata/ingestpipe/internal/events"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// DebounceInterval is how long the worker waits between flushing
// coalesced signals into archive-task enqueues.
const DebounceInterval = 5 * time.Second

type seriesKey struct {
	Symbol    string
	Exchange  string
	TimeFrame model.TimeFrame
}

// Worker drains a MaintenanceSignal channel and periodically enqueues
// archive tasks (forward and backward, via Driver.EnqueueOne) for every
// series that closed a candle since the last flush, so the
// fetch/persist pipeline picks it up without waiting
// for the driver's next periodic tick.
type Worker struct {
	signals <-chan model.MaintenanceSignal
	driver  *archive.Driver
	bus     *events.EventBus

	mu      sync.Mutex
	pending map[seriesKey]int64
}

// New creates a Worker reading from signals and enqueuing catch-up work
// onto driver.
func New(signals <-chan model.MaintenanceSignal, driver *archive.Driver, bus *events.EventBus) *Worker {
	return &Worker{
		signals: signals,
		driver:  driver,
		bus:     bus,
		pending: make(map[seriesKey]int64),
	}
}

// Run blocks, coalescing signals and flushing them every DebounceInterval,
// until ctx is cancelled or the signal channel closes.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(DebounceInterval)
	defer ticker.Stop()

	log := logging.Default().WithComponent("maintenance")

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background(), log)
			return
		case sig, ok := <-w.signals:
			if !ok {
				w.flush(context.Background(), log)
				return
			}
			w.record(sig)
		case <-ticker.C:
			w.flush(ctx, log)
		}
	}
}

func (w *Worker) record(sig model.MaintenanceSignal) {
	key := seriesKey{Symbol: sig.Symbol, Exchange: sig.Exchange, TimeFrame: sig.TimeFrame}

	w.mu.Lock()
	defer w.mu.Unlock()
	if sig.CloseMs > w.pending[key] {
		w.pending[key] = sig.CloseMs
	}
}

func (w *Worker) flush(ctx context.Context, log *logging.Logger) {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[seriesKey]int64)
	w.mu.Unlock()

	for key, closeMs := range pending {
		w.driver.EnqueueOne(ctx, key.Symbol, key.TimeFrame)
		if w.bus != nil {
			w.bus.PublishCandleClosed(key.Symbol, string(key.TimeFrame), closeMs)
		}
	}

	if len(pending) > 0 {
		log.WithField("series", len(pending)).Debug("flushed maintenance signals to archive driver")
	}
}
