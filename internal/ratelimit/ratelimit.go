// Package ratelimit bounds the pace and concurrency of outbound automation.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/mikey/giveaway-engine/internal/core"
)

// Limiter admits at most actions per window and at most maxInFlight
// concurrent holders. It is safe for concurrent use.
type Limiter struct {
	bucket   *rate.Limiter
	inFlight *semaphore.Weighted

	held     atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	timeouts atomic.Int64
}

// Stats is a snapshot of limiter counters
type Stats struct {
	InFlight int64
	Acquired int64
	Released int64
	Timeouts int64
}

// New creates a Limiter allowing actions per window with maxInFlight
// concurrent tokens.
func New(actions int, window time.Duration, maxInFlight int) *Limiter {
	if actions <= 0 {
		actions = 1
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	every := rate.Inf
	if window > 0 {
		every = rate.Every(window / time.Duration(actions))
	}
	return &Limiter{
		bucket:   rate.NewLimiter(every, actions),
		inFlight: semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Acquire waits up to timeout for a token. It returns ErrRateLimitTimeout
// when the deadline passes, or the context error if ctx itself is done.
// No slot is held when an error is returned.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) (core.RateToken, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := l.inFlight.Acquire(waitCtx, 1); err != nil {
		return nil, l.waitError(ctx, "acquire in-flight slot", err)
	}
	if err := l.bucket.Wait(waitCtx); err != nil {
		l.inFlight.Release(1)
		return nil, l.waitError(ctx, "acquire rate token", err)
	}

	l.held.Add(1)
	l.acquired.Add(1)
	return &Token{limiter: l}, nil
}

func (l *Limiter) waitError(parent context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	l.timeouts.Add(1)
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewError(core.KindRateLimitTimeout, op, nil)
	}
	// rate.Limiter reports a wait that would overrun the deadline without
	// waiting for it
	return core.NewError(core.KindRateLimitTimeout, op, err)
}

// InFlight returns the number of tokens currently held
func (l *Limiter) InFlight() int64 {
	return l.held.Load()
}

// Stats returns a snapshot of the counters
func (l *Limiter) Stats() Stats {
	return Stats{
		InFlight: l.held.Load(),
		Acquired: l.acquired.Load(),
		Released: l.released.Load(),
		Timeouts: l.timeouts.Load(),
	}
}

// Token is a held permit. Release is idempotent.
type Token struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the permit to the limiter
func (t *Token) Release() {
	t.once.Do(func() {
		t.limiter.held.Add(-1)
		t.limiter.released.Add(1)
		t.limiter.inFlight.Release(1)
	})
}
