// Package event publishes usage events and aggregates them into metrics
// Package event 发布使用事件并将其聚合为指标
package event

import (
	"context"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix subject prefix used when the configuration leaves it empty
// DefaultSubjectPrefix 配置为空时使用的主题前缀
const DefaultSubjectPrefix = "psnotes.events"

// Bus the part of the NATS client the publisher needs
// Bus 发布者依赖的 NATS 客户端能力
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject returns the subject events of type t are published on
// Subject 返回事件类型 t 对应的主题
func Subject(prefix string, t domain.EventType) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + string(t)
}

type natsPublisher struct {
	bus    Bus
	prefix string
	logger *zap.Logger
}

// NewNatsPublisher publishes sonic encoded events on {prefix}.{eventType}
// NewNatsPublisher 以 JSON 编码将事件发布到 {prefix}.{eventType}
func NewNatsPublisher(bus Bus, prefix string, lg *zap.Logger) domain.EventPublisher {
	if lg == nil {
		lg = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &natsPublisher{bus: bus, prefix: prefix, logger: lg}
}

func (p *natsPublisher) Publish(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	data, err := sonic.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	subject := Subject(p.prefix, event.EventType)
	if err := p.bus.Publish(ctx, subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	p.logger.Debug("event published",
		zap.String(logger.FieldSubject, subject),
		zap.String(logger.FieldEventType, string(event.EventType)))
	return nil
}

type logPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher writes events to the log, used when NATS is disabled
// NewLogPublisher 将事件写入日志，NATS 未启用时使用
func NewLogPublisher(lg *zap.Logger) domain.EventPublisher {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &logPublisher{logger: lg}
}

func (p *logPublisher) Publish(_ context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	p.logger.Info("usage event",
		zap.String(logger.FieldEventType, string(event.EventType)),
		zap.String(logger.FieldOwner, event.Username),
		zap.String(logger.FieldNoteID, event.NoteID),
		zap.Time("timeStamp", event.Timestamp))
	return nil
}
