// Package buffer batches archived bars before they hit a sink, trading a
// small amount of latency for far fewer, larger writes.
package buffer

import (
	"sync"

	"github.com/marketdata/ingestpipe/internal/model"
)

// FORWARD_THRESHOLD and BACKWARD_THRESHOLD are the sequence lengths, in
// buffered messages, that make each direction eligible to flush on its
// own, independent of the periodic timer-driven flush. Forward flushes
// far more eagerly than backward: forward feeds the row store the
// live-edge maintenance worker reads from, while backward is a slow
// historical backfill that tolerates larger batches.
const (
	FORWARD_THRESHOLD  = 100
	BACKWARD_THRESHOLD = 1000
)

// FlushBuffer owns exactly two ordered sequences of fetched
// model.KlineMessage, one per archive direction, shared across every
// symbol, exchange, and time frame. It does not write anywhere itself;
// callers drain a sequence once it crosses its threshold (or on a
// periodic timer) and hand the result to a Sink.
type FlushBuffer struct {
	forwardMu  sync.Mutex
	forward    []model.KlineMessage
	backwardMu sync.Mutex
	backward   []model.KlineMessage
}

// New creates an empty FlushBuffer.
func New() *FlushBuffer {
	return &FlushBuffer{}
}

// Add appends msg to the sequence matching its direction.
func (b *FlushBuffer) Add(msg model.KlineMessage) {
	if len(msg.Bars) == 0 {
		return
	}
	switch msg.Direction {
	case model.DirectionForward:
		b.forwardMu.Lock()
		b.forward = append(b.forward, msg)
		b.forwardMu.Unlock()
	case model.DirectionBackward:
		b.backwardMu.Lock()
		b.backward = append(b.backward, msg)
		b.backwardMu.Unlock()
	}
}

// ShouldFlushForward reports whether the forward sequence has crossed
// FORWARD_THRESHOLD messages.
func (b *FlushBuffer) ShouldFlushForward() bool {
	b.forwardMu.Lock()
	defer b.forwardMu.Unlock()
	return len(b.forward) >= FORWARD_THRESHOLD
}

// ShouldFlushBackward reports whether the backward sequence has crossed
// BACKWARD_THRESHOLD messages.
func (b *FlushBuffer) ShouldFlushBackward() bool {
	b.backwardMu.Lock()
	defer b.backwardMu.Unlock()
	return len(b.backward) >= BACKWARD_THRESHOLD
}

// DrainForward atomically takes and replaces the forward sequence with
// an empty one, returning whatever it held. Returns nil if empty.
func (b *FlushBuffer) DrainForward() []model.KlineMessage {
	b.forwardMu.Lock()
	defer b.forwardMu.Unlock()
	if len(b.forward) == 0 {
		return nil
	}
	out := b.forward
	b.forward = nil
	return out
}

// DrainBackward atomically takes and replaces the backward sequence
// with an empty one, returning whatever it held. Returns nil if empty.
func (b *FlushBuffer) DrainBackward() []model.KlineMessage {
	b.backwardMu.Lock()
	defer b.backwardMu.Unlock()
	if len(b.backward) == 0 {
		return nil
	}
	out := b.backward
	b.backward = nil
	return out
}

// LenForward reports how many messages are currently buffered on the
// forward sequence.
func (b *FlushBuffer) LenForward() int {
	b.forwardMu.Lock()
	defer b.forwardMu.Unlock()
	return len(b.forward)
}

// LenBackward reports how many messages are currently buffered on the
// backward sequence.
func (b *FlushBuffer) LenBackward() int {
	b.backwardMu.Lock()
	defer b.backwardMu.Unlock()
	return len(b.backward)
}
