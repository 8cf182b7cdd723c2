// Package budget tracks the wall-clock allowance of a single retrieval request.
//
// A Budget is shared by every stage of one request. Running out of budget is
// never an error: callers check Expired or Remaining and return a partial or
// empty result instead.
package budget

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Unlimited is returned by Remaining when the budget has no deadline.
const Unlimited = time.Duration(math.MaxInt64)

// UnboundedMillis is returned by RemainingMillis when the budget has no deadline.
const UnboundedMillis = int64(math.MaxInt64)

// Budget is a deadline plus a cancellation flag. The zero value and a nil
// *Budget are both unbounded and never expire.
type Budget struct {
	deadline time.Time
	bounded  bool

	cancelled atomic.Bool
	mu        sync.Mutex
	done      chan struct{}

	now func() time.Time
}

// New returns a budget that expires timeout from now. A timeout <= 0 yields an
// unbounded budget.
func New(timeout time.Duration) *Budget {
	if timeout <= 0 {
		return Unbounded()
	}
	return WithDeadline(time.Now().Add(timeout))
}

// WithDeadline returns a budget that expires at deadline.
func WithDeadline(deadline time.Time) *Budget {
	return &Budget{
		deadline: deadline,
		bounded:  true,
		now:      time.Now,
	}
}

// Unbounded returns a budget with no deadline.
func Unbounded() *Budget {
	return &Budget{now: time.Now}
}

// Remaining reports the time left. It returns Unlimited for an unbounded
// budget and 0 once the deadline has passed or Cancel was called.
func (b *Budget) Remaining() time.Duration {
	if b == nil {
		return Unlimited
	}
	if b.cancelled.Load() {
		return 0
	}
	if !b.bounded {
		return Unlimited
	}
	left := b.deadline.Sub(b.clock())
	if left < 0 {
		return 0
	}
	return left
}

// RemainingMillis is Remaining in whole milliseconds, with UnboundedMillis as
// the no-deadline sentinel.
func (b *Budget) RemainingMillis() int64 {
	left := b.Remaining()
	if left == Unlimited {
		return UnboundedMillis
	}
	return left.Milliseconds()
}

// Expired reports whether no time is left.
func (b *Budget) Expired() bool {
	return b.Remaining() <= 0
}

// Bounded reports whether the budget has a deadline.
func (b *Budget) Bounded() bool {
	return b != nil && b.bounded
}

// Cancel marks the budget as exhausted. Safe to call more than once and from
// multiple goroutines.
func (b *Budget) Cancel() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled.Load() {
		return
	}
	b.cancelled.Store(true)
	if b.done != nil {
		close(b.done)
	}
}

// Done is closed when Cancel is called. It does not fire on deadline; use
// Context for that.
func (b *Budget) Done() <-chan struct{} {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
		if b.cancelled.Load() {
			close(b.done)
		}
	}
	return b.done
}

// Cap returns the smaller of d and the remaining budget. A d <= 0 is treated
// as "no per-call limit".
func (b *Budget) Cap(d time.Duration) time.Duration {
	left := b.Remaining()
	if d <= 0 || left < d {
		return left
	}
	return d
}

// Context derives a context that ends at the budget deadline or when Cancel
// is called, whichever comes first. The returned cancel func must be called.
func (b *Budget) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if b == nil {
		return context.WithCancel(parent)
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if b.bounded {
		ctx, cancel = context.WithDeadline(parent, b.deadline)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	done := b.Done()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (b *Budget) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
