package ratelimit

import (
	"context"
	"time"
)

// Lock spaces callers out by a fixed wait.
type Lock interface {
	// Wait blocks until the caller may proceed or ctx is done. It only
	// holds the lock while waiting, not while the caller does its work.
	Wait(ctx context.Context) error
}

type lock struct {
	sem  chan struct{}
	wait time.Duration
	last time.Time
}

// New returns a lock that guarantees at least wait between consecutive
// callers. A zero wait disables it.
func New(wait time.Duration) Lock {
	return &lock{
		sem:  make(chan struct{}, 1),
		wait: wait,
	}
}

func (l *lock) Wait(ctx context.Context) error {
	if l.wait <= 0 {
		return ctx.Err()
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()
	if elapsed := time.Since(l.last); elapsed < l.wait {
		t := time.NewTimer(l.wait - elapsed)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	l.last = time.Now()
	return nil
}
