// Package writequeue serializes write sequences that share a key.
// Package writequeue 串行化共享同一个键的写操作序列
//
// Operations submitted under the same key (for example an owner id) run one at
// a time in FIFO order on a lazily started worker; different keys run in
// parallel. Idle queues are reclaimed in the background.
// 同一键下提交的操作按 FIFO 顺序逐个执行，不同键之间并行，空闲队列会被后台回收
package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWriteQueueFull returned when the queue of a key is full
	// ErrWriteQueueFull 当某个键的写队列已满时返回
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed returned after Shutdown
	// ErrWriteQueueClosed 当写队列管理器已关闭时返回
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout returned when the operation did not finish within WriteTimeout
	// ErrWriteTimeout 当写操作超时时返回
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	// QueueCapacity per-key queue capacity, default 100
	// QueueCapacity 每个键的队列容量，默认 100
	QueueCapacity int
	// WriteTimeout upper bound a caller waits for its operation, default 30s
	// WriteTimeout 调用方等待操作完成的上限，默认 30 秒
	WriteTimeout time.Duration
	// IdleTimeout idle queues older than this are reclaimed, default 10m
	// IdleTimeout 空闲超过该时间的队列会被回收，默认 10 分钟
	IdleTimeout time.Duration
}

// DefaultConfig returns default configuration
// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

const (
	opPending int32 = iota
	opStarted
	opAbandoned
)

type writeOp struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
	// state moves from opPending to either opStarted (worker) or opAbandoned (caller), never both
	// state 只会从 opPending 变为 opStarted（由 worker）或 opAbandoned（由调用方）之一
	state *atomic.Int32
}

// keyQueue single key write queue
// keyQueue 单个键的写队列
type keyQueue struct {
	key      string
	ch       chan writeOp
	lastUsed atomic.Int64
	stopCh   chan struct{}
	done     chan struct{}

	// mu guards closed and every send on ch
	mu     sync.Mutex
	closed bool
}

// Manager manages the write queues of all keys
// Manager 管理所有键的写队列
type Manager struct {
	config Config
	logger *zap.Logger

	queues sync.Map // map[string]*keyQueue

	mu     sync.RWMutex
	closed bool

	cleanupWg   sync.WaitGroup
	cleanupDone chan struct{}
}

// New creates a write queue manager, cfg nil means DefaultConfig
// New 创建写队列管理器，cfg 为 nil 时使用默认配置
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:      c,
		logger:      logger,
		cleanupDone: make(chan struct{}),
	}

	m.cleanupWg.Add(1)
	go m.cleanupIdleQueues()

	m.logger.Info("write queue manager started",
		zap.Int("queueCapacity", c.QueueCapacity),
		zap.Duration("writeTimeout", c.WriteTimeout),
		zap.Duration("idleTimeout", c.IdleTimeout))

	return m
}

// Execute runs fn after every operation previously submitted under key has
// finished. fn receives ctx. While fn is still queued the call gives up on
// ctx.Done() or after WriteTimeout, and fn is then never run. Once fn has
// started, Execute always waits for it and returns its error.
// Execute 在同一键下此前提交的操作全部完成后执行 fn。fn 仍在排队时，ctx 结束或超过
// WriteTimeout 会放弃等待且 fn 不再执行；fn 一旦开始执行，Execute 总是等待其结束并返回其错误
func (m *Manager) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	result := make(chan error, 1)
	op := writeOp{ctx: ctx, fn: fn, result: result, state: new(atomic.Int32)}

	for {
		q, err := m.getOrCreateQueue(key)
		if err != nil {
			return err
		}
		submitted, err := q.submit(op)
		if err != nil {
			return err
		}
		if submitted {
			break
		}
		// queue was reclaimed between lookup and submit, retry with a fresh one
		// 队列在查找与提交之间被回收，重新获取
	}

	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	var abandonErr error
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		abandonErr = ctx.Err()
	case <-timer.C:
		abandonErr = ErrWriteTimeout
	}

	if op.state.CompareAndSwap(opPending, opAbandoned) {
		return abandonErr
	}
	// already running, its outcome is the outcome of the call
	// 已开始执行，以其结果为准
	return <-result
}

// submit returns false when the queue is already closed
func (q *keyQueue) submit(op writeOp) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, nil
	}
	q.lastUsed.Store(time.Now().UnixNano())
	select {
	case q.ch <- op:
		return true, nil
	default:
		return false, ErrWriteQueueFull
	}
}

func (m *Manager) getOrCreateQueue(key string) (*keyQueue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrWriteQueueClosed
	}

	if v, ok := m.queues.Load(key); ok {
		return v.(*keyQueue), nil
	}

	q := &keyQueue{
		key:    key,
		ch:     make(chan writeOp, m.config.QueueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	q.lastUsed.Store(time.Now().UnixNano())

	actual, loaded := m.queues.LoadOrStore(key, q)
	if loaded {
		return actual.(*keyQueue), nil
	}

	go m.worker(q)

	m.logger.Debug("created write queue",
		zap.String("key", key),
		zap.Int("capacity", m.config.QueueCapacity))

	return q, nil
}

func (m *Manager) worker(q *keyQueue) {
	defer close(q.done)

	for {
		select {
		case <-q.stopCh:
			// closed under q.mu, nothing can be added any more
			// 已在锁内关闭，不会再有新操作
			for {
				select {
				case op := <-q.ch:
					m.executeOp(q, op)
				default:
					return
				}
			}
		case op := <-q.ch:
			m.executeOp(q, op)
		}
	}
}

func (m *Manager) executeOp(q *keyQueue, op writeOp) {
	q.lastUsed.Store(time.Now().UnixNano())

	if !op.state.CompareAndSwap(opPending, opStarted) {
		// caller stopped waiting before the op got its turn
		// 调用方在轮到该操作前已放弃
		return
	}

	if err := op.ctx.Err(); err != nil {
		op.result <- err
		return
	}

	op.result <- op.fn(op.ctx)
}

// stop closes the queue, returns false when it was already closed
func (q *keyQueue) stop(onlyIfIdle func() bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if onlyIfIdle != nil && !onlyIfIdle() {
		return false
	}
	q.closed = true
	close(q.stopCh)
	return true
}

func (m *Manager) cleanupIdleQueues() {
	defer m.cleanupWg.Done()

	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.cleanupDone:
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

func (m *Manager) doCleanup() {
	now := time.Now().UnixNano()
	idleThreshold := m.config.IdleTimeout.Nanoseconds()

	m.queues.Range(func(key, value any) bool {
		q := value.(*keyQueue)
		idle := func() bool {
			return len(q.ch) == 0 && now-q.lastUsed.Load() > idleThreshold
		}
		if q.stop(idle) {
			m.queues.Delete(key)
			m.logger.Debug("cleaning up idle write queue", zap.String("key", q.key))
		}
		return true
	})
}

// Shutdown stops accepting operations and waits for queued ones to finish
// Shutdown 停止接收写操作并等待已排队的操作完成
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("write queue manager shutting down")
	close(m.cleanupDone)

	done := make(chan struct{})
	go func() {
		m.queues.Range(func(_, value any) bool {
			q := value.(*keyQueue)
			q.stop(nil)
			<-q.done
			return true
		})
		m.cleanupWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("write queue manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout")
		return ctx.Err()
	}
}

// QueueCount returns the number of live queues
// QueueCount 返回当前活跃队列数量
func (m *Manager) QueueCount() int {
	count := 0
	m.queues.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// QueuedCount returns the operations waiting under key
// QueuedCount 返回指定键队列中等待的操作数
func (m *Manager) QueuedCount(key string) int {
	if v, ok := m.queues.Load(key); ok {
		return len(v.(*keyQueue).ch)
	}
	return 0
}

// IsClosed returns whether Shutdown was called
// IsClosed 返回管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
