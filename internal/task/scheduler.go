package task

import (
	"context"
	"time"

	"github.com/haierkeys/psnotes-service/pkg/safe_close"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 定义任务接口
type Task interface {
	Name() string                  // 任务名称
	Run(ctx context.Context) error // 执行任务
	Spec() string                  // cron 表达式，支持秒字段与 @every 描述符
	IsStartupRun() bool            // 是否立即执行一次
}

// specParser 支持可选秒字段与 @every / @hourly 等描述符
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler 任务调度器
type Scheduler struct {
	logger  *zap.Logger
	tasks   []Task
	sc      *safe_close.SafeClose
	timeout time.Duration
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger, sc *safe_close.SafeClose) *Scheduler {
	return &Scheduler{
		logger:  logger,
		tasks:   make([]Task, 0),
		sc:      sc,
		timeout: 5 * time.Minute,
	}
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start 启动所有任务，收到关闭信号后等待正在执行的任务结束
func (s *Scheduler) Start() error {
	if len(s.tasks) == 0 {
		s.logger.Info("no tasks to schedule")
		return nil
	}

	c := cron.New(cron.WithParser(specParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, task := range s.tasks {
		if _, err := c.AddFunc(task.Spec(), s.runner(task, "loopRun")); err != nil {
			return err
		}
	}

	s.logger.Info("tasks starting ", zap.Int("count", len(s.tasks)))

	for _, task := range s.tasks {
		if task.IsStartupRun() {
			go s.runner(task, "startupRun")()
		}
	}

	c.Start()

	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		<-c.Stop().Done()
		s.logger.Info("tasks stopped", zap.Int("count", len(s.tasks)))
	})
	return nil
}

// runner 包装单次执行，捕获 panic 并记录结果
func (s *Scheduler) runner(task Task, mode string) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panic",
					zap.String("name", task.Name()),
					zap.String("mode", mode),
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		s.logger.Debug("task running", zap.String("name", task.Name()), zap.String("mode", mode))
		if err := task.Run(ctx); err != nil {
			s.logger.Error("task running error",
				zap.String("name", task.Name()),
				zap.String("mode", mode),
				zap.Error(err))
		}
	}
}
