// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/haierkeys/psnotes-service/internal/dao"
	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/event"
	"github.com/haierkeys/psnotes-service/internal/service"
	pkgapp "github.com/haierkeys/psnotes-service/pkg/app"
	"github.com/haierkeys/psnotes-service/pkg/cache"
	"github.com/haierkeys/psnotes-service/pkg/natsbus"
	"github.com/haierkeys/psnotes-service/pkg/tracer"
	"github.com/haierkeys/psnotes-service/pkg/util"
	"github.com/haierkeys/psnotes-service/pkg/workerpool"
	"github.com/haierkeys/psnotes-service/pkg/writequeue"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	// StartTime 容器创建时间，用于健康检查的运行时长
	StartTime time.Time

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	// 外部连接
	natsClient   *natsbus.Client
	ownsNats     bool
	tracerCloser io.Closer
	registerer   prometheus.Registerer

	// 缓存
	Cache       domain.Cache
	MemoryCache *cache.Memory // cache.backend 为 memory 时非空，供清理任务使用

	// Repository 层
	NoteRepo domain.NoteStore

	// 事件
	Publisher  domain.EventPublisher
	Dispatcher *event.Dispatcher

	// Service 层
	NoteStorage service.NoteStorageService
	NoteService service.NoteService

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// Option 容器可选依赖
type Option func(*App)

// WithRegisterer 指定 Prometheus 注册器，默认 prometheus.DefaultRegisterer
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithNatsClient 注入已建立的 NATS 连接，容器关闭时不会关闭它
func WithNatsClient(c *natsbus.Client) Option {
	return func(a *App) { a.natsClient = c }
}

// NewApp 创建应用容器实例
// 初始化所有依赖并进行依赖注入
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(ctx context.Context, cfg *AppConfig, logger *zap.Logger, db *gorm.DB, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		StartTime:  time.Now(),
		registerer: prometheus.DefaultRegisterer,
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	// 追踪
	if cfg.Tracer.Jaeger {
		_, closer, err := tracer.NewJaegerTracer(cfg.GetTracerConfig(ServiceName))
		if err != nil {
			return nil, errors.Wrap(err, "init jaeger tracer")
		}
		a.tracerCloser = closer
	}

	// 初始化 Worker Pool
	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)

	// 初始化 Write Queue Manager
	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(&wqConfig, logger)

	// NATS
	if cfg.Nats.Enabled && a.natsClient == nil {
		client, err := natsbus.Connect(ctx, cfg.GetNatsConfig(), logger)
		if err != nil {
			a.closePartial()
			return nil, errors.Wrap(err, "connect nats")
		}
		a.natsClient = client
		a.ownsNats = true
	}

	// 缓存
	if err := a.initCache(ctx); err != nil {
		a.closePartial()
		return nil, err
	}

	// 初始化 DAO 与 Repository 层
	a.Dao = dao.New(db, logger)
	a.NoteRepo = dao.NewNoteRepository(a.Dao)

	// 事件
	switch cfg.Events.Publisher {
	case "nats":
		a.Publisher = event.NewNatsPublisher(a.natsClient, cfg.Events.SubjectPrefix, logger)
	case "log":
		a.Publisher = event.NewLogPublisher(logger)
	}
	if a.Publisher != nil {
		a.Dispatcher = event.NewDispatcher(a.Publisher, a.workerPool, cfg.GetPublishTimeout(), logger)
	}

	// 初始化 Service 层（依赖注入）
	a.NoteStorage = service.NewNoteStorageService(a.NoteRepo, a.Cache, a.writeQueueMgr, logger, cfg.GetNoteServiceConfig())
	var emitter service.EventEmitter
	if a.Dispatcher != nil {
		emitter = a.Dispatcher
	}
	a.NoteService = service.NewNoteService(a.NoteStorage, emitter, logger)

	logger.Info("App container initialized successfully",
		zap.String("cacheBackend", cfg.Cache.Backend),
		zap.String("eventPublisher", cfg.Events.Publisher),
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity))

	return a, nil
}

func (a *App) initCache(ctx context.Context) error {
	metrics := cache.NewMetrics(a.registerer)

	switch a.config.Cache.Backend {
	case CacheBackendNats:
		if a.natsClient == nil {
			return errors.New("cache backend nats requires a NATS connection")
		}
		ttl := a.config.GetSlidingExpiration()
		kv, err := a.natsClient.KeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      a.config.Cache.Bucket,
			Description: "psnotes note and summary cache",
			TTL:         ttl,
			Replicas:    a.config.Cache.Replicas,
		})
		if err != nil {
			return errors.Wrap(err, "open cache bucket")
		}
		opts := []cache.NatsKVOption{cache.WithNatsKVMetrics(metrics)}
		if d := util.DurationOr(a.config.Cache.RefreshAfter, 0); d > 0 {
			opts = append(opts, cache.WithRefreshAfter(d))
		}
		a.Cache = cache.NewNatsKV(kv, ttl, opts...)
	default:
		a.MemoryCache = cache.NewMemory(cache.WithMemoryMetrics(metrics))
		a.Cache = a.MemoryCache
	}
	return nil
}

// closePartial 初始化失败时释放已创建的组件
func (a *App) closePartial() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.workerPool.Shutdown(ctx)
	_ = a.writeQueueMgr.Shutdown(ctx)
	if a.ownsNats && a.natsClient != nil {
		_ = a.natsClient.Close(ctx)
	}
	if a.tracerCloser != nil {
		_ = a.tracerCloser.Close()
	}
}

// Close 释放应用容器持有的数据库连接
func (a *App) Close() error {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.logger.Info("Database connection closed")
	}
	return nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Nats 获取 NATS 连接，未启用时为 nil
func (a *App) Nats() *natsbus.Client {
	return a.natsClient
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// IsProductionMode 是否为生产模式
// 根据日志配置中的 Production 字段判断
func (a *App) IsProductionMode() bool {
	return a.config.Log.Production
}

// WorkerPool 获取 Worker Pool（用于高级操作）
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// WriteQueueManager 获取 Write Queue Manager（用于高级操作）
func (a *App) WriteQueueManager() *writequeue.Manager {
	return a.writeQueueMgr
}

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// Shutdown 优雅关闭应用容器
// 按顺序关闭：Worker Pool（排空待发送事件）-> Write Queue Manager -> NATS -> Tracer -> Database
// ctx 用于控制关闭超时，如果为 nil 则使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("App container shutting down...")

	// 如果没有提供 context，使用默认超时
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	// 标记关闭
	select {
	case <-a.shutdownCh:
		// 已经关闭
		return nil
	default:
		close(a.shutdownCh)
	}

	var errs []error

	// 1. 关闭 Worker Pool（停止接受新任务，等待现有任务完成）
	if a.workerPool != nil {
		a.logger.Info("Shutting down worker pool...")
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}

	// 2. 关闭 Write Queue Manager（排空所有队列）
	if a.writeQueueMgr != nil {
		a.logger.Info("Shutting down write queue manager...")
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("write queue manager shutdown: %w", err))
		}
	}

	// 3. 等待所有后台操作完成
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All background operations completed")
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout waiting for background operations")
		errs = append(errs, fmt.Errorf("background operations timeout: %w", ctx.Err()))
	}

	// 4. 关闭 NATS 连接
	if a.ownsNats && a.natsClient != nil {
		if err := a.natsClient.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("nats close: %w", err))
		}
	}

	// 5. 刷新追踪数据
	if a.tracerCloser != nil {
		if err := a.tracerCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tracer close: %w", err))
		}
	}

	// 6. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		a.logger.Warn("App container shutdown completed with errors",
			zap.Int("errorCount", len(errs)))
		return fmt.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// TrackOperation 跟踪后台操作（用于优雅关闭时等待）
// 返回一个函数，在操作完成时调用
func (a *App) TrackOperation() func() {
	a.wg.Add(1)
	return func() {
		a.wg.Done()
	}
}
