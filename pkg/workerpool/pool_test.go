package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SubmitReturnsTaskError(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueSize: 4}, nil)
	defer p.Shutdown(context.Background())

	want := errors.New("boom")
	err := p.Submit(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)

	assert.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, int64(1), p.GetMetrics().FailedCount)
}

func TestPool_SubmitAsyncRunsAll(t *testing.T) {
	p := New(&Config{MaxWorkers: 4, QueueSize: 64}, nil)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(32), ran.Load())

	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.SubmitAsync(context.Background(), func(context.Context) error { return nil }), ErrWorkerPoolClosed)
}

func TestPool_FullQueueRejects(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	// one slot in the queue, the next one overflows
	require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error { return nil }))
	err := p.SubmitAsync(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerPoolFull)
	assert.Equal(t, int64(1), p.GetMetrics().DroppedCount)

	close(release)
}

func TestPool_PanicBecomesError(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	err := p.Submit(context.Background(), func(context.Context) error { panic("bad task") })
	assert.Error(t, err)

	// worker survived
	assert.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestPool_CancelledTaskIsSkipped(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 2}, nil)
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	done := make(chan struct{})
	require.NoError(t, p.SubmitAsync(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stalled")
	}
	assert.False(t, ran.Load())
}
