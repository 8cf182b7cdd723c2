package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRemaining_Bounded(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := WithDeadline(start.Add(300 * time.Millisecond))
	b.now = fixedClock(start)

	assert.Equal(t, 300*time.Millisecond, b.Remaining())
	assert.Equal(t, int64(300), b.RemainingMillis())
	assert.False(t, b.Expired())

	b.now = fixedClock(start.Add(301 * time.Millisecond))
	assert.Equal(t, time.Duration(0), b.Remaining())
	assert.Equal(t, int64(0), b.RemainingMillis())
	assert.True(t, b.Expired())
}

func TestUnbounded(t *testing.T) {
	tests := []struct {
		name string
		b    *Budget
	}{
		{"unbounded", Unbounded()},
		{"zero timeout", New(0)},
		{"negative timeout", New(-time.Second)},
		{"nil", nil},
		{"zero value", &Budget{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Unlimited, tt.b.Remaining())
			assert.Equal(t, UnboundedMillis, tt.b.RemainingMillis())
			assert.False(t, tt.b.Expired())
			assert.False(t, tt.b.Bounded())
		})
	}
}

func TestCancel_Idempotent(t *testing.T) {
	b := New(time.Hour)
	done := b.Done()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Cancel()
		}()
	}
	wg.Wait()

	assert.True(t, b.Expired())
	assert.Equal(t, time.Duration(0), b.Remaining())
	select {
	case <-done:
	default:
		t.Fatal("Done channel not closed after Cancel")
	}

	// Done requested after cancellation is already closed.
	select {
	case <-b.Done():
	default:
		t.Fatal("late Done channel not closed")
	}
}

func TestCancel_Unbounded(t *testing.T) {
	b := Unbounded()
	b.Cancel()
	assert.True(t, b.Expired())
	assert.Equal(t, int64(0), b.RemainingMillis())

	var nilBudget *Budget
	nilBudget.Cancel()
	assert.False(t, nilBudget.Expired())
}

func TestCap(t *testing.T) {
	start := time.Now()
	b := WithDeadline(start.Add(100 * time.Millisecond))
	b.now = fixedClock(start)

	assert.Equal(t, 50*time.Millisecond, b.Cap(50*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, b.Cap(time.Second))
	assert.Equal(t, 100*time.Millisecond, b.Cap(0))
	assert.Equal(t, time.Second, Unbounded().Cap(time.Second))
}

func TestContext_EndsOnCancel(t *testing.T) {
	b := Unbounded()
	ctx, cancel := b.Context(context.Background())
	defer cancel()

	b.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with budget")
	}
}

func TestContext_EndsOnDeadline(t *testing.T) {
	b := New(20 * time.Millisecond)
	ctx, cancel := b.Context(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("context outlived budget deadline")
	}
}

func TestContext_AlreadyCancelled(t *testing.T) {
	b := New(time.Hour)
	b.Cancel()
	ctx, cancel := b.Context(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context from cancelled budget still live")
	}
}
