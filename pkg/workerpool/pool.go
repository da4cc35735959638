// Package workerpool bounds the goroutines used for background work such as
// event publishing.
// Package workerpool 限制后台任务（如事件发布）使用的 goroutine 数量
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrWorkerPoolFull returned when the task queue is full
	// ErrWorkerPoolFull 当任务队列已满时返回
	ErrWorkerPoolFull = errors.New("worker pool queue is full")
	// ErrWorkerPoolClosed returned after Shutdown
	// ErrWorkerPoolClosed 当 Worker Pool 已关闭时返回
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	// ErrTaskCancelled returned when the task context ended before it started
	// ErrTaskCancelled 当任务在开始前已被取消时返回
	ErrTaskCancelled = errors.New("task was cancelled")
)

// Config worker pool configuration
// Config Worker Pool 配置
type Config struct {
	// MaxWorkers concurrent workers, default 16
	// MaxWorkers 最大并发 worker 数量，默认 16
	MaxWorkers int
	// QueueSize pending task capacity, default 1024
	// QueueSize 任务队列大小，默认 1024
	QueueSize int
}

// DefaultConfig returns the default configuration
// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 16,
		QueueSize:  1024,
	}
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is a fixed set of workers reading from a bounded queue
// Pool 固定数量的 worker 从有界队列中读取任务
type Pool struct {
	config Config
	logger *zap.Logger

	taskCh   chan task
	workerWg sync.WaitGroup

	activeCount  atomic.Int64
	failedCount  atomic.Int64
	droppedCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New creates and starts a pool, cfg nil means DefaultConfig
// New 创建并启动 Worker Pool，cfg 为 nil 时使用默认配置
func New(cfg *Config, logger *zap.Logger) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.MaxWorkers > 0 {
			c.MaxWorkers = cfg.MaxWorkers
		}
		if cfg.QueueSize > 0 {
			c.QueueSize = cfg.QueueSize
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: c,
		logger: logger,
		taskCh: make(chan task, c.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < c.MaxWorkers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}

	p.logger.Info("worker pool started",
		zap.Int("maxWorkers", c.MaxWorkers),
		zap.Int("queueSize", c.QueueSize))

	return p
}

func (p *Pool) worker() {
	defer p.workerWg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.taskCh:
			if !ok {
				return
			}
			p.run(t)
		}
	}
}

func (p *Pool) run(t task) {
	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	var err error
	if t.ctx.Err() != nil {
		err = ErrTaskCancelled
	} else {
		err = p.call(t)
	}
	if err != nil {
		p.failedCount.Add(1)
	}

	if t.done != nil {
		t.done <- err
	}
}

// call runs the task, a panic is converted into an error so one bad task
// cannot take a worker down
// call 执行任务，panic 会被转换为错误
func (p *Pool) call(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool task panic", zap.Any("panic", r))
			err = errors.New("worker pool task panic")
		}
	}()
	return t.fn(t.ctx)
}

func (p *Pool) enqueue(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case p.taskCh <- t:
		return nil
	default:
		p.droppedCount.Add(1)
		return ErrWorkerPoolFull
	}
}

// Submit runs fn on the pool and waits for its result
// Submit 提交任务并等待完成
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	if err := p.enqueue(task{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrWorkerPoolClosed
	}
}

// SubmitAsync queues fn without waiting. It never blocks: a full queue
// returns ErrWorkerPoolFull.
// SubmitAsync 异步提交任务，不阻塞，队列已满时返回 ErrWorkerPoolFull
func (p *Pool) SubmitAsync(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(task{ctx: ctx, fn: fn})
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// When ctx ends first the workers are cancelled.
// Shutdown 停止接收任务并等待已排队任务完成，ctx 结束时强制取消
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.taskCh)
	p.mu.Unlock()

	p.logger.Info("worker pool shutting down",
		zap.Int64("activeCount", p.activeCount.Load()),
		zap.Int("queuedCount", len(p.taskCh)))

	done := make(chan struct{})
	go func() {
		p.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool shutdown completed")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("worker pool shutdown timeout, forcing cancellation")
		return ctx.Err()
	}
}

// Metrics worker pool counters
// Metrics Worker Pool 指标
type Metrics struct {
	MaxWorkers    int
	ActiveCount   int64
	QueuedCount   int
	QueueCapacity int
	FailedCount   int64
	DroppedCount  int64
	IsClosed      bool
}

// GetMetrics returns a snapshot of the pool counters
// GetMetrics 获取当前指标
func (p *Pool) GetMetrics() Metrics {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	return Metrics{
		MaxWorkers:    p.config.MaxWorkers,
		ActiveCount:   p.activeCount.Load(),
		QueuedCount:   len(p.taskCh),
		QueueCapacity: p.config.QueueSize,
		FailedCount:   p.failedCount.Load(),
		DroppedCount:  p.droppedCount.Load(),
		IsClosed:      closed,
	}
}
