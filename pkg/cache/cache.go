// Package cache provides the string key/value caches used in front of the
// note store: an in-process Memory cache and a NATS JetStream KV backed cache.
// Both apply a sliding expiration: every hit pushes the entry's expiry forward.
// Package cache 提供笔记存储前端的字符串键值缓存：进程内 Memory 与基于 NATS JetStream KV 的缓存，
// 两者均为滑动过期，每次命中都会延长过期时间
package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrBackend wraps every failure reported by a cache backend
// ErrBackend 包装缓存后端返回的所有错误
var ErrBackend = errors.New("cache backend error")

// Stats hit/miss counters of one cache instance
// Stats 单个缓存实例的命中统计
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Removes int64 `json:"removes"`
	Errors  int64 `json:"errors"`
	Size    int   `json:"size"`
}

// Metrics Prometheus collectors shared by the cache backends
// Metrics 缓存后端共享的 Prometheus 指标
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// NewMetrics registers the cache collectors on reg. Collectors already
// registered by an earlier container (config reload) are reused.
// NewMetrics 在 reg 上注册缓存指标，已注册过的指标（配置重载）直接复用
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psnotes",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache operations by backend, operation and result.",
		}, []string{"backend", "op", "result"})),
		errors: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psnotes",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache backend failures by backend and operation.",
		}, []string{"backend", "op"})),
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observe(backend, op, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, op, result).Inc()
}

func (m *Metrics) fail(backend, op string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(backend, op).Inc()
}
