package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestMemory_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.GetString(ctx, "alice/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetString(ctx, "alice/1", "v1", time.Minute))
	v, ok, err := c.GetString(ctx, "alice/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, c.SetString(ctx, "alice/1", "v2", time.Minute))
	v, _, _ = c.GetString(ctx, "alice/1")
	assert.Equal(t, "v2", v)

	require.NoError(t, c.Remove(ctx, "alice/1"))
	require.NoError(t, c.Remove(ctx, "alice/1"))
	_, ok, _ = c.GetString(ctx, "alice/1")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
	assert.Equal(t, 0, s.Size)
}

func TestMemory_SlidingExpiration(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory(WithClock(clock.Now))

	require.NoError(t, c.SetString(ctx, "k", "v", 10*time.Minute))

	// each access inside the window pushes the expiry forward
	for i := 0; i < 5; i++ {
		clock.Advance(9 * time.Minute)
		_, ok, _ := c.GetString(ctx, "k")
		require.True(t, ok, "access %d", i)
	}

	clock.Advance(10 * time.Minute)
	_, ok, _ := c.GetString(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_Purge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory(WithClock(clock.Now))

	require.NoError(t, c.SetString(ctx, "short", "v", time.Minute))
	require.NoError(t, c.SetString(ctx, "long", "v", time.Hour))
	require.NoError(t, c.SetString(ctx, "forever", "v", 0))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 2, c.Stats().Size)
}

func TestMemory_CancelledContext(t *testing.T) {
	c := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.SetString(ctx, "k", "v", time.Minute), context.Canceled)
	_, _, err := c.GetString(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := NewMemory(WithMemoryMetrics(m))

	_, _, _ = c.GetString(ctx, "k")
	_ = c.SetString(ctx, "k", "v", time.Minute)
	_, _, _ = c.GetString(ctx, "k")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("memory", "get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("memory", "get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("memory", "set", "ok")))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)

	var second *Metrics
	require.NotPanics(t, func() { second = NewMetrics(reg) })

	first.observe("memory", "get", "hit")
	second.observe("memory", "get", "hit")
	assert.Equal(t, 2.0, testutil.ToFloat64(first.requests.WithLabelValues("memory", "get", "hit")))
}
