package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire(t *testing.T) {
	l := New(2)
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.True(t, l.TryAcquire())
}

func TestNew_MinimumOnePermit(t *testing.T) {
	l := New(0)
	assert.Equal(t, 1, l.Size())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestAcquire_NoWaitFailsFast(t *testing.T) {
	l := New(1)
	require.NoError(t, l.Acquire(context.Background(), 0))

	start := time.Now()
	err := l.Acquire(context.Background(), 0)
	assert.ErrorIs(t, err, ErrSaturated)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_TimesOut(t *testing.T) {
	l := New(1)
	require.True(t, l.TryAcquire())

	err := l.Acquire(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrSaturated)
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	l := New(1)
	require.True(t, l.TryAcquire())

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Release()
	}()
	assert.NoError(t, l.Acquire(context.Background(), time.Second))
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx, time.Second), context.Canceled)
}
