// Package worker runs a bounded pool of goroutines executing archive
// tasks handed off by the fair scheduler.
package worker

import (
	"context"
	"sync"

	"github.com/marketdata/ingestpipe/internal/archive"
	"github.com/marketdata/ingestpipe/internal/events"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/scheduler"
)

// QueueCapacity bounds how many dispatched-but-not-yet-running tasks can
// sit in the pool's intake channel before Dispatch blocks, providing
// backpressure to the scheduler's dispatch loop. A full channel pauses
// the dispatching side, which in turn stops acquiring new rate-limiter
// tokens.
const QueueCapacity = 1000

// Pool executes archive tasks handed to it by a FairScheduler's dispatch
// loop, across a fixed number of worker goroutines.
type Pool struct {
	runner *archive.Runner
	sched  *scheduler.FairScheduler
	bus    *events.EventBus

	intake chan model.ArchiveTask
	wg     sync.WaitGroup
}

// New creates a Pool that drains tasks from a bounded intake channel. It
// starts no goroutines; Start sets the concurrency.
func New(runner *archive.Runner, sched *scheduler.FairScheduler, bus *events.EventBus) *Pool {
	return &Pool{
		runner: runner,
		sched:  sched,
		bus:    bus,
		intake: make(chan model.ArchiveTask, QueueCapacity),
	}
}

// Dispatch is passed to FairScheduler.Run as its DispatchFunc. It is the
// only point where the scheduler hands work to the pool.
func (p *Pool) Dispatch(task model.ArchiveTask) {
	p.intake <- task
}

// Start spawns n worker goroutines consuming the intake channel until
// ctx is cancelled.
func (p *Pool) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

// Wait blocks until every worker goroutine has exited, after the intake
// channel is closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting new tasks. Call after the scheduler's Run has
// returned.
func (p *Pool) Close() {
	close(p.intake)
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	log := logging.Default().WithComponent("worker")

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.intake:
			if !ok {
				return
			}
			p.execute(ctx, task, log)
		}
	}
}

func (p *Pool) execute(ctx context.Context, task model.ArchiveTask, log *logging.Logger) {
	defer p.sched.Done(task)

	barCount, err := p.runner.Run(ctx, task)
	dir := task.Direction.String()

	if err != nil {
		log.WithError(err).WithField("symbol", task.Symbol).Error("archive task failed")
		if p.bus != nil {
			p.bus.PublishArchiveTaskError(task.Symbol, string(task.TimeFrame), dir, err.Error())
		}
		return
	}

	if p.bus != nil {
		p.bus.PublishArchiveTaskDone(task.Symbol, string(task.TimeFrame), dir, barCount)
	}
}
