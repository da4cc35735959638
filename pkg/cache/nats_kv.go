package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NatsKV is a cache on top of a JetStream key/value bucket.
// The bucket TTL is the sliding window: the per-call sliding argument of
// SetString is not applied per key, the bucket was created with it.
// A hit rewrites the entry (compare-and-set on its revision) so its age
// restarts, which keeps an entry that is read regularly alive and never
// resurrects a concurrently removed one.
// NatsKV 基于 JetStream KV 存储桶的缓存，存储桶 TTL 即滑动窗口；
// 命中时按修订号 CAS 重写条目以重置其年龄，不会复活已被并发删除的条目
type NatsKV struct {
	kv           jetstream.KeyValue
	ttl          time.Duration
	refreshAfter time.Duration
	metrics      *Metrics

	hits, misses, sets, removes, errs atomic.Int64
}

// NatsKVOption configures a NatsKV cache
type NatsKVOption func(*NatsKV)

// WithNatsKVMetrics reports operations to m
func WithNatsKVMetrics(m *Metrics) NatsKVOption {
	return func(c *NatsKV) { c.metrics = m }
}

// WithRefreshAfter only rewrites entries older than d on a hit, 0 refreshes on every hit
// WithRefreshAfter 仅在条目年龄超过 d 时刷新，0 表示每次命中都刷新
func WithRefreshAfter(d time.Duration) NatsKVOption {
	return func(c *NatsKV) { c.refreshAfter = d }
}

// NewNatsKV wraps kv, ttl must match the bucket TTL
// NewNatsKV 包装 kv，ttl 必须与存储桶 TTL 一致
func NewNatsKV(kv jetstream.KeyValue, ttl time.Duration, opts ...NatsKVOption) *NatsKV {
	c := &NatsKV{kv: kv, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NatsKV) GetString(ctx context.Context, key string) (string, bool, error) {
	k := EscapeKey(key)

	entry, err := c.kv.Get(ctx, k)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			c.misses.Add(1)
			c.metrics.observe("nats", "get", "miss")
			return "", false, nil
		}
		return "", false, c.fail("get", key, err)
	}

	c.hits.Add(1)
	c.metrics.observe("nats", "get", "hit")

	if c.ttl > 0 && time.Since(entry.Created()) >= c.refreshAfter {
		// a lost race means someone else wrote or removed the key, both are fine
		if _, err := c.kv.Update(ctx, k, entry.Value(), entry.Revision()); err != nil &&
			!errors.Is(err, jetstream.ErrKeyExists) {
			c.metrics.fail("nats", "refresh")
		}
	}

	return string(entry.Value()), true, nil
}

func (c *NatsKV) SetString(ctx context.Context, key, value string, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, EscapeKey(key), []byte(value)); err != nil {
		return c.fail("set", key, err)
	}
	c.sets.Add(1)
	c.metrics.observe("nats", "set", "ok")
	return nil
}

func (c *NatsKV) Remove(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, EscapeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return c.fail("remove", key, err)
	}
	c.removes.Add(1)
	c.metrics.observe("nats", "remove", "ok")
	return nil
}

func (c *NatsKV) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Removes: c.removes.Load(),
		Errors:  c.errs.Load(),
		Size:    -1,
	}
}

// Bucket returns the bucket name
func (c *NatsKV) Bucket() string {
	return c.kv.Bucket()
}

func (c *NatsKV) fail(op, key string, err error) error {
	c.errs.Add(1)
	c.metrics.fail("nats", op)
	return fmt.Errorf("%w: nats kv %s %q: %w", ErrBackend, op, key, err)
}

const hexDigits = "0123456789ABCDEF"

// EscapeKey maps an arbitrary string into the JetStream key alphabet.
// Letters, digits, '-', '_' and '/' are kept, every other byte becomes =XX.
// The mapping is reversible with UnescapeKey.
// EscapeKey 将任意字符串映射到 JetStream 键字符集，字母、数字、'-'、'_'、'/' 保持不变，其余字节编码为 =XX
func EscapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		ch := key[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '/':
			b.WriteByte(ch)
		default:
			b.WriteByte('=')
			b.WriteByte(hexDigits[ch>>4])
			b.WriteByte(hexDigits[ch&0x0f])
		}
	}
	return b.String()
}

// UnescapeKey reverses EscapeKey
// UnescapeKey 还原 EscapeKey 的结果
func UnescapeKey(key string) (string, error) {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		if key[i] != '=' {
			b.WriteByte(key[i])
			continue
		}
		if i+2 >= len(key) {
			return "", fmt.Errorf("truncated escape in %q", key)
		}
		hi, lo := unhex(key[i+1]), unhex(key[i+2])
		if hi < 0 || lo < 0 {
			return "", fmt.Errorf("invalid escape in %q", key)
		}
		b.WriteByte(byte(hi<<4 | lo))
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c - 'A' + 10)
	}
	return -1
}
