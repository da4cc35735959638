// Package limiter token bucket rate limiting for the HTTP API
// Package limiter HTTP 接口的令牌桶限流
package limiter

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face rate limiter interface used by the middleware
// Face 中间件使用的限流器接口
type Face interface {
	Key(c *gin.Context) string
	GetBucket(key string) (*ratelimit.Bucket, bool)
	AddBuckets(rules ...BucketRule) Face
}

// BucketRule one token bucket: Capacity tokens, Quantum added every FillInterval
// BucketRule 令牌桶规则：容量 Capacity，每 FillInterval 放入 Quantum 个令牌
type BucketRule struct {
	Key          string
	FillInterval time.Duration
	Capacity     int64
	Quantum      int64
}

// MethodLimiter limits by route pattern, e.g. "/api/notes/:username"
// MethodLimiter 按路由模式限流
type MethodLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*ratelimit.Bucket
}

func NewMethodLimiter() *MethodLimiter {
	return &MethodLimiter{buckets: make(map[string]*ratelimit.Bucket)}
}

// Key returns the matched route pattern, falling back to the path without query
// Key 返回匹配到的路由模式，未匹配时使用去掉查询参数的路径
func (l *MethodLimiter) Key(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	uri := c.Request.RequestURI
	if i := strings.Index(uri, "?"); i >= 0 {
		return uri[:i]
	}
	return uri
}

func (l *MethodLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.buckets[key]
	return b, ok
}

func (l *MethodLimiter) AddBuckets(rules ...BucketRule) Face {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rules {
		if r.FillInterval <= 0 || r.Capacity <= 0 {
			continue
		}
		quantum := r.Quantum
		if quantum <= 0 {
			quantum = 1
		}
		if _, ok := l.buckets[r.Key]; !ok {
			l.buckets[r.Key] = ratelimit.NewBucketWithQuantum(r.FillInterval, r.Capacity, quantum)
		}
	}
	return l
}
