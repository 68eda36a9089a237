// Package iotimeout bounds how long a single filesystem operation may block.
package iotimeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation does not finish within its deadline.
var ErrTimeout = errors.New("operation timed out")

// Do runs fn and waits at most d for it to return. A non-positive d waits
// until fn returns or ctx is done.
//
// fn keeps running in the background after a timeout; callers must not share
// mutable state with it.
func Do[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return run(ctx, d, fn)
}

// Limiter caps how many operations run at once. An operation abandoned
// after a timeout holds its slot until fn actually returns.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a Limiter with n slots. n below one is treated as one.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// DoLimited is Do with a slot from l held for as long as fn runs. Waiting
// for a free slot is bounded by d as well. A nil l behaves like Do.
func DoLimited[T any](ctx context.Context, l *Limiter, d time.Duration, fn func() (T, error)) (T, error) {
	var zero T

	if l == nil {
		return Do(ctx, d, fn)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := l.acquire(ctx, d); err != nil {
		return zero, err
	}

	return run(ctx, d, func() (T, error) {
		defer l.release()
		return fn()
	})
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

func (l *Limiter) acquire(ctx context.Context, d time.Duration) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	default:
	}

	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-timer:
		return fmt.Errorf("%w after %s waiting for a free slot", ErrTimeout, d)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	<-l.slots
}

// run always calls fn exactly once.
func run[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	var zero T

	if d <= 0 && ctx.Done() == nil {
		return fn()
	}

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
