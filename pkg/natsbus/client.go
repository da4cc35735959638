// Package natsbus wraps one NATS connection per process: plain subjects for
// events and JetStream key/value buckets for the distributed cache.
// Package natsbus 封装进程唯一的 NATS 连接：普通主题用于事件，JetStream KV 用于分布式缓存
package natsbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotConnected returned when the connection is closed or not established
// ErrNotConnected 连接未建立或已关闭时返回
var ErrNotConnected = errors.New("not connected to NATS")

// Config connection settings
// Config 连接配置
type Config struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	// MaxReconnects -1 means reconnect forever
	// MaxReconnects -1 表示无限重连
	MaxReconnects int
	// HandlerTimeout per-message context timeout of Subscribe handlers, default 30s
	// HandlerTimeout Subscribe 处理函数的单条消息超时，默认 30 秒
	HandlerTimeout time.Duration
}

// Client one NATS connection plus its JetStream context
// Client 一个 NATS 连接及其 JetStream 上下文
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// Connect dials cfg.URL, the call gives up when ctx ends first
// Connect 连接 cfg.URL，ctx 先结束时放弃
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	c := &Client{cfg: cfg, logger: logger}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(cfg.URL, opts...)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, pkgerrors.Wrapf(r.err, "connect nats %s", cfg.URL)
		}
		js, err := jetstream.New(r.conn)
		if err != nil {
			r.conn.Close()
			return nil, pkgerrors.Wrap(err, "init jetstream")
		}
		c.conn, c.js = r.conn, js
	case <-ctx.Done():
		// the dial goroutine still owns the connection, close it once it lands
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, pkgerrors.Wrap(ctx.Err(), "connect nats")
	}

	logger.Info("nats connected", zap.String("url", c.conn.ConnectedUrl()))
	return c, nil
}

// IsConnected reports whether the connection is currently usable
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends data on subject
// Publish 向主题发送数据
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Subscribe registers handler on subject. Each message gets a context derived
// from ctx with the configured handler timeout.
// Subscribe 订阅主题，每条消息的 context 派生自 ctx 并带有处理超时
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "subscribe %s", subject)
	}

	c.subs = append(c.subs, sub)
	return nil
}

// KeyValue returns the bucket cfg.Bucket, creating it when missing
// KeyValue 获取存储桶，不存在时创建
func (c *Client) KeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return nil, ErrNotConnected
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Debug("using existing kv bucket", zap.String("bucket", cfg.Bucket))
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, pkgerrors.Wrapf(err, "lookup kv bucket %s", cfg.Bucket)
	}

	kv, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !isAlreadyExists(err) {
			return nil, pkgerrors.Wrapf(err, "create kv bucket %s", cfg.Bucket)
		}
		// created concurrently by another process
		// 其它进程并发创建
		kv, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "access kv bucket %s", cfg.Bucket)
		}
		return kv, nil
	}

	c.logger.Info("created kv bucket", zap.String("bucket", cfg.Bucket), zap.Duration("ttl", cfg.TTL))
	return kv, nil
}

// Close unsubscribes and drains the connection. Drain is bounded by ctx.
// Close 取消订阅并排空连接，排空时间受 ctx 限制
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}

	closed := make(chan struct{})
	conn.SetClosedHandler(func(_ *nats.Conn) { close(closed) })
	if err := conn.Drain(); err != nil {
		conn.Close()
		return pkgerrors.Wrap(err, "drain nats")
	}

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

func isAlreadyExists(err error) bool {
	if errors.Is(err, jetstream.ErrBucketExists) || errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "already in use") || strings.Contains(s, "already exists")
}
