package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dental-inference-service/internal/core/domain"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool := NewPool(2, time.Second)

	release1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	release2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InUse())

	release1()
	release2()
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolQueueTimeout(t *testing.T) {
	pool := NewPool(1, 20*time.Millisecond)

	release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestPoolSlotFreesWaiter(t *testing.T) {
	pool := NewPool(1, time.Second)

	release, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := pool.Acquire(context.Background())
		if err == nil {
			r()
		}
		done <- err
	}()

	release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never got the freed slot")
	}
}

func TestPoolAcquireCancelled(t *testing.T) {
	pool := NewPool(1, time.Second)

	release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
