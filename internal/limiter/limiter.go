// Package limiter bounds concurrent calls into a backend.
package limiter

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrSaturated is returned when no permit became available in time.
var ErrSaturated = errors.New("limiter: no permit available")

// Limiter is a counting semaphore with a fixed number of permits.
type Limiter struct {
	sem  *semaphore.Weighted
	size int64
}

// New returns a limiter with size permits. size < 1 is raised to 1.
func New(size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// TryAcquire takes a permit without waiting.
func (l *Limiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Acquire waits up to maxWait for a permit. maxWait <= 0 means do not wait.
// It returns ErrSaturated on timeout and ctx.Err() if ctx ends first.
func (l *Limiter) Acquire(ctx context.Context, maxWait time.Duration) error {
	if l.sem.TryAcquire(1) {
		return nil
	}
	if maxWait <= 0 {
		return ErrSaturated
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrSaturated
	}
	return nil
}

// Release returns a permit taken by TryAcquire or Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Size is the total number of permits.
func (l *Limiter) Size() int {
	return int(l.size)
}
