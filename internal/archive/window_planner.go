package archive

import (
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// maxArchiveAge is the age cutoff beyond which a series's backward
// history is considered complete: once the oldest archived bar is older
// than this, backward archival stops entirely for that key.
const maxArchiveAge = 5 * 365 * 24 * time.Hour

// WindowPlanner turns a Progress value into an ordered list of aligned,
// bounded fetch windows, chunked so no single fetch asks an exchange for
// more than chunk_ms worth of history.
type WindowPlanner struct {
	// now is overridable for deterministic tests; production code leaves
	// it nil and the planner uses time.Now.
	now func() time.Time
}

// NewWindowPlanner creates a planner using the wall clock.
func NewWindowPlanner() *WindowPlanner {
	return &WindowPlanner{now: time.Now}
}

// Plan produces the ordered, non-overlapping list of windows needed to
// advance p in direction dir, chunked to chunk_ms = min(1000*period,
// backlog*period). An empty slice means there is nothing to fetch right
// now (forward: already caught up to the live edge; backward: nothing
// archived yet to walk back from, or the 5-year age cutoff has fired).
func (w *WindowPlanner) Plan(p model.Progress, dir model.ArchiveDirection) []model.ArchiveWindow {
	period := p.TimeFrame.PeriodMS()
	backlog := p.TimeFrame.BacklogTarget()
	chunk := period * min(1000, backlog)
	limit := int(chunk / period)

	switch dir {
	case model.DirectionForward:
		return w.planForward(p, period, backlog, chunk, limit)
	case model.DirectionBackward:
		return w.planBackward(p, period, backlog, chunk, limit)
	default:
		return nil
	}
}

func (w *WindowPlanner) planForward(p model.Progress, period, backlog, chunk int64, limit int) []model.ArchiveWindow {
	nowAligned := p.TimeFrame.AlignDown(w.now().UnixMilli())
	start := p.TimeFrame.AlignDown(p.MaxCloseMs)
	if start >= nowAligned {
		return nil
	}

	end := start + backlog*period
	if end > nowAligned {
		end = nowAligned
	}

	return w.chunkSpan(p, model.DirectionForward, start, end, chunk, limit)
}

func (w *WindowPlanner) planBackward(p model.Progress, period, backlog, chunk int64, limit int) []model.ArchiveWindow {
	cutoff := w.now().Add(-maxArchiveAge).UnixMilli()
	if p.MinCloseMs != 0 && p.MinCloseMs <= cutoff {
		logging.ArchiveContext(p.Symbol, p.TimeFrame, model.DirectionBackward).
			Info("backward history older than the age cutoff, skipping archival")
		return nil
	}

	end := p.TimeFrame.AlignDown(p.MinCloseMs)
	start := p.TimeFrame.AlignDown(end - backlog*period)
	if start < 0 {
		start = 0
	}

	return w.chunkSpan(p, model.DirectionBackward, start, end, chunk, limit)
}

func (w *WindowPlanner) chunkSpan(p model.Progress, dir model.ArchiveDirection, spanStart, spanEnd, chunk int64, limit int) []model.ArchiveWindow {
	if spanStart >= spanEnd {
		return nil
	}

	var windows []model.ArchiveWindow
	for start := spanStart; start < spanEnd; start += chunk {
		end := start + chunk
		if end > spanEnd {
			end = spanEnd
		}
		if start >= end {
			logging.ArchiveContext(p.Symbol, p.TimeFrame, dir).
				WithField("start", start).WithField("end", end).
				Warn("discarding degenerate window chunk")
			continue
		}
		windows = append(windows, model.ArchiveWindow{
			Symbol:    p.Symbol,
			Exchange:  p.Exchange,
			TimeFrame: p.TimeFrame,
			Direction: dir,
			StartMs:   start,
			EndMs:     end,
			Limit:     limit,
		})
	}
	return windows
}
