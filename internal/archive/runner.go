package archive

import (
	"context"
	"time"

	"github.com/marketdata/ingestpipe/internal/buffer"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// MaxTaskAttempts bounds how many times a whole task (every window it
// carries, fetched and buffered) is retried before it's dropped back to
// the scheduler for a later round.
const MaxTaskAttempts = 3

// TaskRetryDelay is the pause between whole-task retry attempts.
const TaskRetryDelay = 5 * time.Second

// Runner executes one archive task end to end: fetch every window it
// carries, and hand the results to the FlushBuffer. Progress itself is
// never advanced explicitly — it's a derived read model computed from
// whatever the sink has actually persisted, so a successful flush is
// what advances it.
type Runner struct {
	fetcher *Fetcher
	buf     *buffer.FlushBuffer
	ctrl    *buffer.FlushController
}

// NewRunner wires together the pieces a task execution needs.
func NewRunner(fetcher *Fetcher, buf *buffer.FlushBuffer, ctrl *buffer.FlushController) *Runner {
	return &Runner{fetcher: fetcher, buf: buf, ctrl: ctrl}
}

// Run executes task, retrying the whole operation up to MaxTaskAttempts
// times with TaskRetryDelay between attempts. It returns the number of
// bars fetched and the final error, if any.
func (r *Runner) Run(ctx context.Context, task model.ArchiveTask) (barCount int, err error) {
	log := logging.ArchiveContext(task.Symbol, task.TimeFrame, task.Direction)

	for attempt := 0; attempt < MaxTaskAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(TaskRetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		n, runErr := r.runOnce(ctx, task)
		if runErr == nil {
			return n, nil
		}
		err = runErr
		log.WithError(err).WithField("attempt", attempt+1).Warn("archive task attempt failed")
	}

	return 0, err
}

func (r *Runner) runOnce(ctx context.Context, task model.ArchiveTask) (int, error) {
	total := 0
	log := logging.ArchiveContext(task.Symbol, task.TimeFrame, task.Direction)

	for _, window := range task.Windows {
		bars, err := r.fetcher.Fetch(ctx, window)
		if err != nil {
			return 0, err
		}
		if len(bars) == 0 {
			continue
		}
		total += len(bars)

		r.buf.Add(model.KlineMessage{
			Bars:      bars,
			Symbol:    task.Symbol,
			Exchange:  task.Exchange,
			TimeFrame: task.TimeFrame,
			Direction: task.Direction,
		})
	}

	if r.ctrl != nil {
		r.ctrl.FlushIfDue(ctx, log)
	}

	return total, nil
}
