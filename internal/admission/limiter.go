package admission

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often TakeBlocking re-checks the bucket.
const DefaultPollInterval = 10 * time.Millisecond

// Clock supplies the current time used for refill calculations.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock used for refill. Tests use a fixed clock
// to make token arithmetic deterministic.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.poll = d
		}
	}
}

// Limiter is a token bucket. A new Limiter starts full.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
	fillRate float64
	clock    Clock
	poll     time.Duration
}

// New creates a Limiter holding capacity tokens that refills at fillRate
// tokens per second. Capacity below 1 is raised to 1.
func New(capacity int, fillRate float64, opts ...Option) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if fillRate < 0 {
		fillRate = 0
	}

	l := &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(fillRate), capacity),
		capacity: capacity,
		fillRate: fillRate,
		clock:    realClock{},
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// FillRate returns the refill rate in tokens per second.
func (l *Limiter) FillRate() float64 {
	return l.fillRate
}

// Available reports the tokens currently in the bucket, after refill.
func (l *Limiter) Available() float64 {
	return l.bucket.TokensAt(l.clock.Now())
}

// TryTake removes n tokens if they are available and reports whether it did.
// It never blocks.
func (l *Limiter) TryTake(n int) bool {
	if n <= 0 || n > l.capacity {
		return false
	}
	return l.bucket.AllowN(l.clock.Now(), n)
}

// TakeBlocking waits until n tokens can be taken, polling every poll interval.
// It returns ErrTimeout once timeout has elapsed, or the context error if ctx
// ends first. The timeout is measured in real time regardless of the Clock.
func (l *Limiter) TakeBlocking(ctx context.Context, n int, timeout time.Duration) error {
	if n <= 0 || n > l.capacity {
		return fmt.Errorf("%w: n=%d capacity=%d", ErrInvalidRequest, n, l.capacity)
	}

	if l.bucket.AllowN(l.clock.Now(), n) {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %d token(s) after %s", ErrTimeout, n, timeout)
		case <-ticker.C:
			if l.bucket.AllowN(l.clock.Now(), n) {
				return nil
			}
		}
	}
}
