package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPool_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxConcurrent, newSlotPool(0).Capacity())
	assert.Equal(t, DefaultMaxConcurrent, newSlotPool(-2).Capacity())
	assert.Equal(t, 5, newSlotPool(5).Capacity())
}

func TestSlotPool_TryAcquire(t *testing.T) {
	t.Parallel()

	pool := newSlotPool(2)
	assert.True(t, pool.TryAcquire())
	assert.True(t, pool.TryAcquire())
	assert.False(t, pool.TryAcquire())
	assert.Equal(t, 2, pool.InUse())

	pool.Release()
	assert.Equal(t, 1, pool.InUse())
	assert.True(t, pool.TryAcquire())
}

func TestSlotPool_AcquireWakesOnRelease(t *testing.T) {
	t.Parallel()

	pool := newSlotPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		if err := pool.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a slot while the pool was full")
	case <-time.After(20 * time.Millisecond):
	}

	pool.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("blocked acquire was not woken by release")
	}
}

func TestSlotPool_AcquireContextCancelled(t *testing.T) {
	t.Parallel()

	pool := newSlotPool(1)
	require.True(t, pool.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlotPool_ReleaseWithoutAcquirePanics(t *testing.T) {
	t.Parallel()

	pool := newSlotPool(1)
	assert.Panics(t, func() { pool.Release() })
}

func TestJobQueue_FIFO(t *testing.T) {
	t.Parallel()

	var q jobQueue[string]
	q.Push("a")
	q.Push("b")
	q.Push("c")
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push("d")
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
