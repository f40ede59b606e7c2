package archive

import (
	"context"
	"sort"

	"github.com/marketdata/ingestpipe/internal/exchange"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// Fetcher retrieves bars for a planned window and validates them before
// they reach the flush buffer.
type Fetcher struct {
	bars exchange.BarFetcher
	gaps *GapTracker
}

// NewFetcher wraps a BarFetcher with window-level validation.
func NewFetcher(bars exchange.BarFetcher) *Fetcher {
	return &Fetcher{bars: bars}
}

// WithGapTracker attaches a GapTracker that records a non-fatal
// contiguity report for every successfully fetched window, for
// observability on the admin surface.
func (f *Fetcher) WithGapTracker(g *GapTracker) *Fetcher {
	f.gaps = g
	return f
}

// Fetch retrieves window's bars, sorts them by close time, and checks
// them for contiguity. Gaps are logged and recorded on the tracker but
// never discard data; the exchange's history is authoritative even when
// it has holes.
func (f *Fetcher) Fetch(ctx context.Context, window model.ArchiveWindow) ([]model.Bar, error) {
	bars, err := f.bars.FetchBars(ctx, window.Symbol, window.TimeFrame, window.StartMs, window.EndMs, window.Limit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].CloseTimeMs < bars[j].CloseTimeMs })

	report := CheckContiguity(bars, window.TimeFrame)
	if f.gaps != nil {
		f.gaps.Record(window.Symbol, window.TimeFrame, report)
	}
	if !report.Empty() {
		logging.ArchiveContext(window.Symbol, window.TimeFrame, window.Direction).
			WithField("gap_indices", report.Indices).
			Warn("contiguity violation in fetched window; keeping data")
	}

	return bars, nil
}
