package archive

import (
	"context"
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/scheduler"
)

// Driver periodically plans and enqueues archive work for a fixed set of
// symbol/time-frame series, in both directions. It is also called
// directly by the maintenance worker to react to a live candle close
// without waiting for the next tick.
type Driver struct {
	builder *ArchiveTaskBuilder
	sched   *scheduler.FairScheduler

	exchange   string
	symbols    []string
	timeFrames []model.TimeFrame
}

// NewDriver creates a Driver covering every symbol/timeframe pair in the
// cross product of symbols and timeFrames, on exchange.
func NewDriver(builder *ArchiveTaskBuilder, sched *scheduler.FairScheduler, exchange string, symbols []string, timeFrames []model.TimeFrame) *Driver {
	return &Driver{
		builder:    builder,
		sched:      sched,
		exchange:   exchange,
		symbols:    symbols,
		timeFrames: timeFrames,
	}
}

// Run ticks every interval, enqueuing any due work and draining the
// scheduler's queue each cycle. It blocks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, interval time.Duration, dispatch scheduler.DispatchFunc) {
	log := logging.Default().WithComponent("archive-driver")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.EnqueueDue(ctx)
	d.sched.Run(ctx, dispatch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := d.EnqueueDue(ctx)
			if n > 0 {
				log.WithField("enqueued", n).Debug("driver enqueued due work")
			}
			d.sched.Run(ctx, dispatch)
		}
	}
}

// EnqueueDue plans and enqueues every series/direction with outstanding
// work, returning how many tasks it queued.
func (d *Driver) EnqueueDue(ctx context.Context) int {
	enqueued := 0
	for _, symbol := range d.symbols {
		for _, tf := range d.timeFrames {
			enqueued += d.EnqueueOne(ctx, symbol, tf)
		}
	}
	return enqueued
}

// EnqueueOne builds both directions' tasks for symbol/tf and enqueues
// whichever ones have work and aren't already in flight. It returns how
// many tasks were enqueued (0, 1, or 2).
func (d *Driver) EnqueueOne(ctx context.Context, symbol string, tf model.TimeFrame) int {
	tasks := d.builder.Build(ctx, symbol, d.exchange, tf)

	enqueued := 0
	for _, task := range tasks {
		if d.sched.Enqueue(task, tf.SchedulerPriority()) {
			enqueued++
		}
	}
	return enqueued
}
