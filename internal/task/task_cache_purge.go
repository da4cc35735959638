package task

import (
	"context"

	"github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/pkg/cache"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"go.uber.org/zap"
)

// init 自动注册缓存清理任务
func init() {
	Register(NewCachePurgeTask)
}

// CachePurgeTask 定期清理进程内缓存中已过期的条目
// 过期条目在读取时也会被丢弃，此任务只回收长期未被访问的内存
type CachePurgeTask struct {
	cache  *cache.Memory
	spec   string
	logger *zap.Logger
}

// NewCachePurgeTask 创建缓存清理任务，非内存缓存后端时不需要
func NewCachePurgeTask(a *app.App) (Task, error) {
	if a.MemoryCache == nil || a.Config().Cache.PurgeInterval == "" {
		return nil, nil
	}
	if _, err := specParser.Parse(a.Config().Cache.PurgeInterval); err != nil {
		return nil, err
	}
	return &CachePurgeTask{
		cache:  a.MemoryCache,
		spec:   a.Config().Cache.PurgeInterval,
		logger: a.Logger(),
	}, nil
}

// Name 返回任务名称
func (t *CachePurgeTask) Name() string {
	return "CachePurgeTask"
}

// Run 执行清理
func (t *CachePurgeTask) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := t.cache.Purge()
	if n > 0 {
		t.logger.Info(t.Name()+" completed", zap.Int(logger.FieldCount, n))
	}
	return nil
}

// Spec 返回 cron 表达式
func (t *CachePurgeTask) Spec() string {
	return t.spec
}

// IsStartupRun 启动时不需要清理
func (t *CachePurgeTask) IsStartupRun() bool {
	return false
}
