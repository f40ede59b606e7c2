package archive

import (
	"sync"

	"github.com/marketdata/ingestpipe/internal/model"
)

// GapReport lists the indices in a bar slice where the expected
// one-period boundary between consecutive bars was not met.
type GapReport struct {
	Indices []int
}

func (r GapReport) Empty() bool { return len(r.Indices) == 0 }

// CheckContiguity reports every index where bars[i] does not open
// exactly one period after bars[i-1], without treating a gap as fatal.
// Fetch calls it after sorting and keeps the bars either way; the report
// only feeds logging and the gap counters.
func CheckContiguity(bars []model.Bar, tf model.TimeFrame) GapReport {
	period := tf.PeriodMS()
	var report GapReport
	for i := 1; i < len(bars); i++ {
		if bars[i].OpenTimeMs-bars[i-1].OpenTimeMs != period {
			report.Indices = append(report.Indices, i)
		}
	}
	return report
}

// GapTracker keeps the most recent gap count observed per symbol/time
// frame key, so the admin surface can expose it without re-scanning bars.
type GapTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewGapTracker() *GapTracker {
	return &GapTracker{counts: make(map[string]int)}
}

// Record stores report's gap count under "symbol:timeframe", overwriting
// whatever was recorded there before.
func (g *GapTracker) Record(symbol string, tf model.TimeFrame, report GapReport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[symbol+":"+string(tf)] = len(report.Indices)
}

// Snapshot returns a copy of the current per-key gap counts.
func (g *GapTracker) Snapshot() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}
