// Package ratelimit implements the weight-based request admission control
// the archive fetcher uses against an exchange's historical kline endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBudget is the per-minute weight budget, matching the exchange's
// published limit for the kline endpoint family.
const DefaultBudget = 2400

// maxJitter spreads bursts of concurrent fetch workers across the refill
// window instead of letting them all fire on the same tick.
const maxJitter = 30 * time.Millisecond

// Weight returns the request weight for a kline fetch of the given page
// size, following the exchange's weight ladder: small pages are cheap,
// large pages cost proportionally more.
func Weight(limit int) int {
	switch {
	case limit <= 99:
		return 1
	case limit <= 499:
		return 2
	default:
		return 5
	}
}

// Limiter is a token-bucket admission gate with a circuit breaker for
// exchange-issued bans. Weight is consumed per request rather than per
// call, since a single call may request a large page.
type Limiter struct {
	bucket *rate.Limiter

	mu       sync.Mutex
	bannedAt time.Time
	banUntil time.Time
}

// NewLimiter builds a Limiter with the given per-minute weight budget.
func NewLimiter(budget int) *Limiter {
	if budget <= 0 {
		budget = DefaultBudget
	}
	perSecond := rate.Limit(float64(budget) / 60.0)
	return &Limiter{
		bucket: rate.NewLimiter(perSecond, budget),
	}
}

// Acquire blocks until weight tokens are available or the ban expires,
// whichever is later, or ctx is cancelled. It applies a small random
// jitter after the bucket admits the request so concurrent workers don't
// all fire in lockstep.
func (l *Limiter) Acquire(ctx context.Context, weight int) error {
	if err := l.waitOutBan(ctx); err != nil {
		return err
	}
	if err := l.bucket.WaitN(ctx, weight); err != nil {
		return fmt.Errorf("ratelimit: acquire weight %d: %w", weight, err)
	}
	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// TryAcquire is a non-blocking admission check; it does not wait out an
// active ban.
func (l *Limiter) TryAcquire(weight int) bool {
	if l.Banned() {
		return false
	}
	return l.bucket.AllowN(time.Now(), weight)
}

// RecordBan opens the circuit breaker until banUntil. Passing a zero
// value is a no-op.
func (l *Limiter) RecordBan(banUntil time.Time) {
	if banUntil.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bannedAt = time.Now()
	l.banUntil = banUntil
}

// Banned reports whether the limiter is currently honoring an
// exchange-issued ban.
func (l *Limiter) Banned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.banUntil.IsZero() && time.Now().Before(l.banUntil)
}

func (l *Limiter) waitOutBan(ctx context.Context) error {
	l.mu.Lock()
	until := l.banUntil
	l.mu.Unlock()

	if until.IsZero() {
		return nil
	}
	wait := time.Until(until)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
