package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	value     string
	sliding   time.Duration
	expiresAt time.Time
}

// Memory is an in-process cache with per-entry sliding expiration.
// Expired entries are dropped lazily on access and in bulk by Purge.
// Memory 进程内缓存，按条目滑动过期；过期条目在访问时惰性删除，或由 Purge 批量清理
type Memory struct {
	mu      sync.Mutex
	items   map[string]*memoryEntry
	now     func() time.Time
	metrics *Metrics

	hits, misses, sets, removes atomic.Int64
}

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithMemoryMetrics reports operations to m
func WithMemoryMetrics(m *Metrics) MemoryOption {
	return func(c *Memory) { c.metrics = m }
}

// WithClock replaces time.Now, used by tests
// WithClock 替换 time.Now，用于测试
func WithClock(now func() time.Time) MemoryOption {
	return func(c *Memory) { c.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	c := &Memory{
		items: make(map[string]*memoryEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetString returns the value and slides its expiry forward
// GetString 返回缓存值并延长其过期时间
func (c *Memory) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	now := c.now()

	c.mu.Lock()
	e, ok := c.items[key]
	if ok && !now.Before(e.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	if ok && e.sliding > 0 {
		e.expiresAt = now.Add(e.sliding)
	}
	var value string
	if ok {
		value = e.value
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		c.metrics.observe("memory", "get", "miss")
		return "", false, nil
	}
	c.hits.Add(1)
	c.metrics.observe("memory", "get", "hit")
	return value, true, nil
}

// SetString stores value, sliding <= 0 means the entry never expires
// SetString 写入缓存，sliding <= 0 表示永不过期
func (c *Memory) SetString(ctx context.Context, key, value string, sliding time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := &memoryEntry{value: value, sliding: sliding}
	if sliding > 0 {
		e.expiresAt = c.now().Add(sliding)
	} else {
		e.expiresAt = time.Unix(1<<62, 0)
	}

	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()

	c.sets.Add(1)
	c.metrics.observe("memory", "set", "ok")
	return nil
}

// Remove deletes key, a missing key is not an error
// Remove 删除键，键不存在不视为错误
func (c *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()

	c.removes.Add(1)
	c.metrics.observe("memory", "remove", "ok")
	return nil
}

// Purge drops every expired entry and returns how many were removed
// Purge 清理所有过期条目并返回清理数量
func (c *Memory) Purge() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

func (c *Memory) Stats() Stats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Removes: c.removes.Load(),
		Size:    size,
	}
}

func (c *Memory) Close() error { return nil }
