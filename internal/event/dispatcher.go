package event

import (
	"context"
	"time"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"go.uber.org/zap"
)

// Submitter runs fn in the background, returns an error when it was not accepted
// Submitter 后台执行 fn，未被接受时返回错误
type Submitter interface {
	SubmitAsync(ctx context.Context, fn func(context.Context) error) error
}

// Dispatcher sends events without blocking the request that produced them.
// Failures are logged and never reach the caller.
// Dispatcher 不阻塞产生事件的请求发送事件，失败只记录日志，不会返回给调用方
type Dispatcher struct {
	publisher domain.EventPublisher
	pool      Submitter
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. pool nil publishes synchronously.
// NewDispatcher 创建分发器，pool 为 nil 时同步发布
func NewDispatcher(publisher domain.EventPublisher, pool Submitter, timeout time.Duration, lg *zap.Logger) *Dispatcher {
	if lg == nil {
		lg = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{publisher: publisher, pool: pool, timeout: timeout, logger: lg}
}

// Emit hands event to the publisher, detached from the cancellation of ctx
// Emit 将事件交给发布者，与 ctx 的取消解耦
func (d *Dispatcher) Emit(ctx context.Context, event *domain.Event) {
	if d == nil || d.publisher == nil || event == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if d.pool == nil {
		d.publish(ctx, event)
		return
	}

	err := d.pool.SubmitAsync(ctx, func(ctx context.Context) error {
		d.publish(ctx, event)
		return nil
	})
	if err != nil {
		d.logger.Warn("event dropped",
			zap.String(logger.FieldEventType, string(event.EventType)),
			zap.String(logger.FieldNoteID, event.NoteID),
			zap.Error(err))
	}
}

func (d *Dispatcher) publish(ctx context.Context, event *domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn("publish event failed",
			zap.String(logger.FieldEventType, string(event.EventType)),
			zap.String(logger.FieldOwner, event.Username),
			zap.String(logger.FieldNoteID, event.NoteID),
			zap.Error(err))
	}
}
