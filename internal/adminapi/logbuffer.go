package adminapi

import (
	"encoding/json"
	"sync"

	"github.com/marketdata/ingestpipe/internal/events"
)

// logLine is the decoded shape of one logging.LogEntry, kept loose since
// the admin surface only needs to filter and display it.
type logLine struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// logRingBuffer keeps the last capacity log lines seen since the admin
// server started, fed by logging.SetSink via the event bus.
type logRingBuffer struct {
	mu       sync.Mutex
	capacity int
	lines    []logLine
	next     int
	filled   bool
}

func newLogRingBuffer(capacity int) *logRingBuffer {
	return &logRingBuffer{
		capacity: capacity,
		lines:    make([]logLine, capacity),
	}
}

func (b *logRingBuffer) attach(bus *events.EventBus) {
	bus.Subscribe(events.EventLogLine, func(ev events.Event) {
		raw, _ := ev.Data["line"].(string)
		if raw == "" {
			return
		}
		var line logLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return
		}
		b.push(line)
	})
}

func (b *logRingBuffer) push(line logLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.filled = true
	}
}

// snapshot returns buffered lines oldest-first.
func (b *logRingBuffer) snapshot() []logLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.filled {
		out := make([]logLine, b.next)
		copy(out, b.lines[:b.next])
		return out
	}

	out := make([]logLine, b.capacity)
	copy(out, b.lines[b.next:])
	copy(out[b.capacity-b.next:], b.lines[:b.next])
	return out
}
