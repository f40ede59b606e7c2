package model

import "math"

// Trade is one public trade print consumed from an exchange's trade stream.
// It is immutable once constructed by the stream consumer.
type Trade struct {
	TimestampMs int64
	Price       float64
	Size        float64
}

// Valid reports whether the trade carries a usable price and size. The
// aggregator skips malformed trades (non-finite price, non-positive size)
// rather than failing, per the error-handling policy for the live path.
func (t Trade) Valid() bool {
	if t.Size <= 0 {
		return false
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return false
	}
	return t.Price > 0
}
