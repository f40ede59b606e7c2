package archive

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketdata/ingestpipe/internal/model"
)

// ArchiveTaskBuilder combines a ProgressTracker and a WindowPlanner into
// the forward and backward ArchiveTasks dispatchable for one
// (symbol, exchange, time frame).
type ArchiveTaskBuilder struct {
	progress *ProgressTracker
	planner  *WindowPlanner
}

// NewTaskBuilder creates an ArchiveTaskBuilder reading progress through
// progress and planning windows through planner.
func NewTaskBuilder(progress *ProgressTracker, planner *WindowPlanner) *ArchiveTaskBuilder {
	return &ArchiveTaskBuilder{progress: progress, planner: planner}
}

// Build always attempts both directions for the series: forward chasing
// the live edge, backward walking toward the exchange's listing date. A
// direction is omitted from the result if its progress puts it past the
// 5-year age cutoff (backward only) or if the planner has zero windows
// left to fetch.
func (b *ArchiveTaskBuilder) Build(ctx context.Context, symbol, exchange string, tf model.TimeFrame) []model.ArchiveTask {
	var tasks []model.ArchiveTask

	forward := b.progress.Forward(ctx, symbol, exchange, tf)
	if windows := b.planner.Plan(forward, model.DirectionForward); len(windows) > 0 {
		tasks = append(tasks, b.buildTask(symbol, exchange, tf, model.DirectionForward, windows))
	}

	backward := b.progress.Backward(ctx, symbol, exchange, tf)
	if windows := b.planner.Plan(backward, model.DirectionBackward); len(windows) > 0 {
		tasks = append(tasks, b.buildTask(symbol, exchange, tf, model.DirectionBackward, windows))
	}

	return tasks
}

func (b *ArchiveTaskBuilder) buildTask(symbol, exchange string, tf model.TimeFrame, dir model.ArchiveDirection, windows []model.ArchiveWindow) model.ArchiveTask {
	return model.ArchiveTask{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Exchange:  exchange,
		TimeFrame: tf,
		Direction: dir,
		Windows:   windows,
	}
}

// Retry returns a copy of task with Attempt incremented. Runner.Run
// retries a task without calling it, so Attempt stays at its built value
// there.
func (b *ArchiveTaskBuilder) Retry(task model.ArchiveTask) model.ArchiveTask {
	task.Attempt++
	return task
}
