package event

import (
	"context"
	"time"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Subscriber the part of the NATS client the stats processor needs
// Subscriber 统计处理器依赖的 NATS 客户端能力
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// StatsProcessor consumes usage events and keeps Prometheus counters of them
// StatsProcessor 消费使用事件并维护 Prometheus 计数
type StatsProcessor struct {
	logger *zap.Logger

	processed    *prometheus.CounterVec
	decodeErrors prometheus.Counter
	duration     prometheus.Histogram
}

// NewStatsProcessor registers the processor metrics on reg
// NewStatsProcessor 在 reg 上注册处理器指标
func NewStatsProcessor(reg prometheus.Registerer, lg *zap.Logger) *StatsProcessor {
	if lg == nil {
		lg = zap.NewNop()
	}
	f := promauto.With(reg)
	return &StatsProcessor{
		logger: lg,
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psnotes_events_processed_total",
			Help: "Total number of usage events processed, by event type.",
		}, []string{"type"}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "psnotes_event_decode_errors_total",
			Help: "Total number of usage events that could not be decoded.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "psnotes_event_processing_seconds",
			Help:    "Time spent processing one usage event.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// Start subscribes to every event subject under prefix
// Start 订阅 prefix 下的所有事件主题
func (p *StatsProcessor) Start(ctx context.Context, sub Subscriber, prefix string) error {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	subject := prefix + ".>"
	if err := sub.Subscribe(ctx, subject, p.Handle); err != nil {
		return err
	}
	p.logger.Info("stats processor started", zap.String(logger.FieldSubject, subject))
	return nil
}

// Handle processes one encoded event
// Handle 处理一条编码后的事件
func (p *StatsProcessor) Handle(_ context.Context, data []byte) {
	start := time.Now()
	defer func() { p.duration.Observe(time.Since(start).Seconds()) }()

	var event domain.Event
	if err := sonic.Unmarshal(data, &event); err != nil {
		p.decodeErrors.Inc()
		p.logger.Warn("undecodable event", zap.Error(err), zap.Int("size", len(data)))
		return
	}

	eventType := string(event.EventType)
	if !event.EventType.Valid() {
		eventType = "unknown"
	}
	p.processed.WithLabelValues(eventType).Inc()

	p.logger.Debug("event received",
		zap.String(logger.FieldEventType, string(event.EventType)),
		zap.String(logger.FieldOwner, event.Username),
		zap.String(logger.FieldNoteID, event.NoteID))
}
