// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/psnotes-service/internal/dao"
	"github.com/haierkeys/psnotes-service/internal/service"
	"github.com/haierkeys/psnotes-service/pkg/limiter"
	"github.com/haierkeys/psnotes-service/pkg/logger"
	"github.com/haierkeys/psnotes-service/pkg/natsbus"
	"github.com/haierkeys/psnotes-service/pkg/tracer"
	"github.com/haierkeys/psnotes-service/pkg/util"
	"github.com/haierkeys/psnotes-service/pkg/workerpool"
	"github.com/haierkeys/psnotes-service/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// 缓存后端
const (
	CacheBackendMemory = "memory"
	CacheBackendNats   = "nats"
)

// AppConfig 应用配置
type AppConfig struct {
	File     string         `yaml:"-"` // 配置文件路径，不序列化
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Nats     NatsConfig     `yaml:"nats"`
	Events   EventsConfig   `yaml:"events"`
	Note     NoteConfig     `yaml:"note"`
	App      AppSettings    `yaml:"app"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径，为空时只输出到 stderr
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式 debug / release / test
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 监听地址
	HttpPort string `yaml:"http-port" default:":9000"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒）
	WriteTimeout int `yaml:"write-timeout" default:"60"`
	// PrivateHttpListen 私有 HTTP 监听地址（metrics / pprof），为空时不启动
	PrivateHttpListen string `yaml:"private-http-listen" default:":9001"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type 数据库类型 sqlite / mysql / postgres
	Type string `yaml:"type" default:"sqlite"`
	// Path SQLite 数据库文件路径
	Path string `yaml:"path" default:"storage/database/psnotes.sqlite3"`
	// UserName 用户名
	UserName string `yaml:"username"`
	// Password 密码
	Password string `yaml:"password"`
	// Host 主机 host:port
	Host string `yaml:"host"`
	// Name 数据库名
	Name string `yaml:"name"`
	// TablePrefix 表前缀
	TablePrefix string `yaml:"table-prefix"`
	// AutoMigrate 是否启用自动迁移
	AutoMigrate bool `yaml:"auto-migrate" default:"true"`
	// Charset 字符集
	Charset string `yaml:"charset" default:"utf8mb4"`
	// ParseTime 是否解析时间
	ParseTime bool `yaml:"parse-time" default:"true"`
	// Replicas 只读副本
	Replicas []string `yaml:"replicas"`
	// MaxIdleConns 最大闲置连接数
	MaxIdleConns int `yaml:"max-idle-conns" default:"10"`
	// MaxOpenConns 最大打开连接数
	MaxOpenConns int `yaml:"max-open-conns" default:"100"`
	// ConnMaxLifetime 连接最大生命周期
	ConnMaxLifetime string `yaml:"conn-max-lifetime" default:"30m"`
	// ConnMaxIdleTime 空闲连接最大生命周期
	ConnMaxIdleTime string `yaml:"conn-max-idle-time" default:"10m"`
}

// CacheConfig 分布式缓存配置
type CacheConfig struct {
	// Backend memory（单进程）或 nats（JetStream KV）
	Backend string `yaml:"backend" default:"memory"`
	// SlidingExpiration 所有缓存条目的滑动过期时间
	SlidingExpiration string `yaml:"sliding-expiration" default:"20m"`
	// Bucket JetStream KV 存储桶名称
	Bucket string `yaml:"bucket" default:"psnotes_cache"`
	// Replicas KV 存储桶副本数
	Replicas int `yaml:"replicas" default:"1"`
	// RefreshAfter 命中时条目年龄超过该值才重置 TTL，为空表示每次命中都重置
	RefreshAfter string `yaml:"refresh-after"`
	// PurgeInterval 内存缓存清理过期条目的 cron 表达式
	PurgeInterval string `yaml:"purge-interval" default:"@every 1m"`
}

// NatsConfig NATS 连接配置
type NatsConfig struct {
	// Enabled 是否连接 NATS，cache.backend 为 nats 或启用事件发布时需要
	Enabled        bool   `yaml:"enabled" default:"false"`
	URL            string `yaml:"url" default:"nats://127.0.0.1:4222"`
	Name           string `yaml:"name" default:"psnotes-service"`
	ConnectTimeout string `yaml:"connect-timeout" default:"5s"`
	ReconnectWait  string `yaml:"reconnect-wait" default:"2s"`
	MaxReconnects  int    `yaml:"max-reconnects" default:"-1"`
	HandlerTimeout string `yaml:"handler-timeout" default:"30s"`
}

// EventsConfig 使用事件配置
type EventsConfig struct {
	// Publisher nats 或 log
	Publisher string `yaml:"publisher" default:"log"`
	// SubjectPrefix 事件主题前缀
	SubjectPrefix string `yaml:"subject-prefix" default:"psnotes.events"`
	// PublishTimeout 单个事件发布超时
	PublishTimeout string `yaml:"publish-timeout" default:"5s"`
}

// NoteConfig 笔记存储配置
type NoteConfig struct {
	// LenientDelete 删除失败时只记录日志并返回成功
	LenientDelete bool `yaml:"lenient-delete" default:"false"`
	// SerializeSummaryWrites 在本进程内串行化同一所有者的摘要列表写操作
	SerializeSummaryWrites bool `yaml:"serialize-summary-writes" default:"true"`
	// BackendTimeout 共享回源加载与写入主存储后缓存维护的超时，不随单个请求取消
	BackendTimeout string `yaml:"backend-timeout" default:"10s"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 默认请求上下文超时时间（秒）
	DefaultContextTimeout int `yaml:"default-context-timeout" default:"60"`
	// Lang 默认语言 en / zh
	Lang string `yaml:"lang" default:"en"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"16"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"1024"`

	// Write Queue 配置
	WriteQueueCapacity int    `yaml:"write-queue-capacity" default:"100"`
	WriteQueueTimeout  string `yaml:"write-queue-timeout" default:"30s"`
	WriteQueueIdleTime string `yaml:"write-queue-idle-time" default:"10m"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `yaml:"enabled" default:"true"`
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
	// Jaeger 是否向 Jaeger agent 上报 span
	Jaeger bool `yaml:"jaeger" default:"false"`
	// AgentHostPort Jaeger agent 地址
	AgentHostPort string `yaml:"agent-host-port" default:"127.0.0.1:6831"`
	// SampleRate 采样率 0-1
	SampleRate float64 `yaml:"sample-rate" default:"1"`
	// DBTracing 是否为 SQL 调用创建 span
	DBTracing bool `yaml:"db-tracing" default:"false"`
}

// LimiterConfig 接口限流配置
type LimiterConfig struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	Rules   []LimiterRule `yaml:"rules"`
}

// LimiterRule 单条限流规则
type LimiterRule struct {
	// Key 路由模式，例如 /api/notes/:username
	Key          string `yaml:"key"`
	FillInterval string `yaml:"fill-interval" default:"1s"`
	Capacity     int64  `yaml:"capacity" default:"100"`
	Quantum      int64  `yaml:"quantum" default:"100"`
}

// MCPConfig MCP 工具接口配置
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/api/mcp"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	c, err := ParseConfig(file)
	if err != nil {
		return nil, realpath, err
	}
	c.File = realpath

	return c, realpath, nil
}

// ParseConfig 解析 YAML 配置并填充默认值
func ParseConfig(data []byte) (*AppConfig, error) {
	c := new(AppConfig)

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "set default config failed")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config file failed")
	}

	// 限流规则在解析后才存在，单独填充默认值
	// 不对整个配置再次 defaults.Set，否则 YAML 中显式的 false 会被默认值 true 覆盖
	for i := range c.Limiter.Rules {
		if err := defaults.Set(&c.Limiter.Rules[i]); err != nil {
			return nil, errors.Wrap(err, "set default limiter rule failed")
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate 检查相互依赖的配置项
func (c *AppConfig) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendNats:
		if !c.Nats.Enabled {
			return errors.New("cache.backend nats requires nats.enabled")
		}
	default:
		return errors.Errorf("unsupported cache.backend %q", c.Cache.Backend)
	}

	switch c.Events.Publisher {
	case "log", "none":
	case "nats":
		if !c.Nats.Enabled {
			return errors.New("events.publisher nats requires nats.enabled")
		}
	default:
		return errors.Errorf("unsupported events.publisher %q", c.Events.Publisher)
	}

	if _, err := util.ParseDuration(c.Cache.SlidingExpiration); err != nil {
		return errors.Wrap(err, "cache.sliding-expiration")
	}
	if _, err := util.ParseDuration(c.Note.BackendTimeout); err != nil {
		return errors.Wrap(err, "note.backend-timeout")
	}
	return nil
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}

	err = os.WriteFile(c.File, data, 0644)
	if err != nil {
		return errors.Wrap(err, "write config file failed")
	}

	return nil
}

// GetLoggerConfig 获取日志配置
func (c *AppConfig) GetLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		Production: c.Log.Production,
	}
}

// GetDatabaseConfig 获取 DAO 使用的数据库配置
func (c *AppConfig) GetDatabaseConfig() dao.DatabaseConfig {
	return dao.DatabaseConfig{
		Type:            c.Database.Type,
		Path:            c.Database.Path,
		UserName:        c.Database.UserName,
		Password:        c.Database.Password,
		Host:            c.Database.Host,
		Name:            c.Database.Name,
		TablePrefix:     c.Database.TablePrefix,
		AutoMigrate:     c.Database.AutoMigrate,
		Charset:         c.Database.Charset,
		ParseTime:       c.Database.ParseTime,
		Replicas:        c.Database.Replicas,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		Tracing:         c.Tracer.DBTracing,
		RunMode:         c.Server.RunMode,
	}
}

// GetSlidingExpiration 获取缓存滑动过期时间
func (c *AppConfig) GetSlidingExpiration() time.Duration {
	return util.DurationOr(c.Cache.SlidingExpiration, service.DefaultSlidingExpiration)
}

// GetNoteServiceConfig 获取笔记存储配置
func (c *AppConfig) GetNoteServiceConfig() service.NoteServiceConfig {
	return service.NoteServiceConfig{
		SlidingExpiration:      c.GetSlidingExpiration(),
		LenientDelete:          c.Note.LenientDelete,
		SerializeSummaryWrites: c.Note.SerializeSummaryWrites,
		BackendTimeout:         util.DurationOr(c.Note.BackendTimeout, service.DefaultBackendTimeout),
	}
}

// GetNatsConfig 获取 NATS 连接配置
func (c *AppConfig) GetNatsConfig() natsbus.Config {
	return natsbus.Config{
		URL:            c.Nats.URL,
		Name:           c.Nats.Name,
		ConnectTimeout: util.DurationOr(c.Nats.ConnectTimeout, 5*time.Second),
		ReconnectWait:  util.DurationOr(c.Nats.ReconnectWait, 2*time.Second),
		MaxReconnects:  c.Nats.MaxReconnects,
		HandlerTimeout: util.DurationOr(c.Nats.HandlerTimeout, 30*time.Second),
	}
}

// GetTracerConfig 获取 Jaeger 配置
func (c *AppConfig) GetTracerConfig(serviceName string) tracer.Config {
	return tracer.Config{
		ServiceName:   serviceName,
		AgentHostPort: c.Tracer.AgentHostPort,
		SampleRate:    c.Tracer.SampleRate,
		LogSpans:      c.Server.RunMode == "debug",
	}
}

// GetLimiterRules 获取限流规则
func (c *AppConfig) GetLimiterRules() []limiter.BucketRule {
	rules := make([]limiter.BucketRule, 0, len(c.Limiter.Rules))
	for _, r := range c.Limiter.Rules {
		rules = append(rules, limiter.BucketRule{
			Key:          r.Key,
			FillInterval: util.DurationOr(r.FillInterval, time.Second),
			Capacity:     r.Capacity,
			Quantum:      r.Quantum,
		})
	}
	return rules
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}

	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()

	if c.App.WriteQueueCapacity > 0 {
		cfg.QueueCapacity = c.App.WriteQueueCapacity
	}
	cfg.WriteTimeout = util.DurationOr(c.App.WriteQueueTimeout, cfg.WriteTimeout)
	cfg.IdleTimeout = util.DurationOr(c.App.WriteQueueIdleTime, cfg.IdleTimeout)

	return cfg
}

// GetContextTimeout 获取请求上下文超时
func (c *AppConfig) GetContextTimeout() time.Duration {
	return time.Duration(c.App.DefaultContextTimeout) * time.Second
}

// GetPublishTimeout 获取事件发布超时
func (c *AppConfig) GetPublishTimeout() time.Duration {
	return util.DurationOr(c.Events.PublishTimeout, 5*time.Second)
}
