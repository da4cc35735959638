// Package tracer sets up the jaeger backed opentracing tracer
// Package tracer 初始化基于 jaeger 的 opentracing 追踪器
package tracer

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Config tracer settings
// Config 追踪器配置
type Config struct {
	ServiceName string
	// AgentHostPort jaeger agent address, e.g. 127.0.0.1:6831
	// AgentHostPort jaeger agent 地址
	AgentHostPort string
	// SampleRate fraction of traces kept, 1 keeps everything
	// SampleRate 采样比例，1 表示全部保留
	SampleRate float64
	LogSpans   bool
}

// NewJaegerTracer creates a tracer and installs it as the opentracing global tracer.
// The returned closer flushes buffered spans.
// NewJaegerTracer 创建追踪器并设置为 opentracing 全局追踪器，返回的 closer 用于刷新缓冲的 span
func NewJaegerTracer(cfg Config) (opentracing.Tracer, io.Closer, error) {
	sampler := &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeConst, Param: 1}
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeProbabilistic, Param: cfg.SampleRate}
	}

	c := &jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler:     sampler,
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           cfg.LogSpans,
			LocalAgentHostPort: cfg.AgentHostPort,
		},
	}

	t, closer, err := c.NewTracer()
	if err != nil {
		return nil, nil, errors.Wrap(err, "new jaeger tracer")
	}
	opentracing.SetGlobalTracer(t)
	return t, closer, nil
}
