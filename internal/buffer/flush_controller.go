package buffer

import (
	"context"
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// FlushInterval bounds how long a thin trickle of bars on either
// direction's sequence can sit in memory before it's forced out
// regardless of whether it has crossed its threshold.
const FlushInterval = 15 * time.Second

// FlushFunc writes a drained sequence to its sink. Implementations
// should be quick to return; the controller calls it synchronously
// from its run loop.
type FlushFunc func(ctx context.Context, dir model.ArchiveDirection, msgs []model.KlineMessage) error

// FlushController drives a FlushBuffer's lifecycle: the archive runner
// calls FlushIfDue once a task's windows have been added, so a sequence
// that crossed its threshold flushes then, while Run periodically forces out whatever is
// left so a quiet series doesn't sit buffered indefinitely.
type FlushController struct {
	buf   *FlushBuffer
	flush FlushFunc
}

// NewController wraps buf, calling flush for every sequence it drains.
func NewController(buf *FlushBuffer, flush FlushFunc) *FlushController {
	return &FlushController{buf: buf, flush: flush}
}

// FlushIfDue drains and flushes whichever direction sequence has
// crossed its threshold. The archive runner calls it once per task, after
// that task's FlushBuffer.Add calls.
func (c *FlushController) FlushIfDue(ctx context.Context, log *logging.Logger) {
	if c.buf.ShouldFlushForward() {
		c.drainAndFlush(ctx, log, model.DirectionForward)
	}
	if c.buf.ShouldFlushBackward() {
		c.drainAndFlush(ctx, log, model.DirectionBackward)
	}
}

// Run blocks, forcing out both sequences every FlushInterval regardless
// of threshold, until ctx is cancelled, at which point it flushes once
// more before returning.
func (c *FlushController) Run(ctx context.Context) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	log := logging.Default().WithComponent("flush_controller")

	for {
		select {
		case <-ctx.Done():
			c.flushAll(context.Background(), log)
			return
		case <-ticker.C:
			c.flushAll(ctx, log)
		}
	}
}

func (c *FlushController) flushAll(ctx context.Context, log *logging.Logger) {
	c.drainAndFlush(ctx, log, model.DirectionForward)
	c.drainAndFlush(ctx, log, model.DirectionBackward)
}

func (c *FlushController) drainAndFlush(ctx context.Context, log *logging.Logger, dir model.ArchiveDirection) {
	var msgs []model.KlineMessage
	switch dir {
	case model.DirectionForward:
		msgs = c.buf.DrainForward()
	case model.DirectionBackward:
		msgs = c.buf.DrainBackward()
	}
	if len(msgs) == 0 {
		return
	}
	if err := c.flush(ctx, dir, msgs); err != nil {
		log.WithError(err).WithField("direction", dir.String()).Error("flush failed")
	}
}
