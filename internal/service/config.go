// Package service implements the business logic layer
// Package service 实现业务逻辑层
package service

import "time"

// ServiceConfig service layer configuration
// ServiceConfig 服务层配置
type ServiceConfig struct {
	Note NoteServiceConfig // Note related config // 笔记相关配置
}

// NoteServiceConfig note storage configuration
// NoteServiceConfig 笔记存储配置
type NoteServiceConfig struct {
	// SlidingExpiration sliding expiration of every cache entry the storage writes
	// SlidingExpiration 存储写入的所有缓存条目的滑动过期时间
	SlidingExpiration time.Duration
	// LenientDelete swallow delete failures (log and report success) instead of returning a retryable error
	// LenientDelete 吞掉删除失败（记录日志并返回成功），而不是返回可重试错误
	LenientDelete bool
	// SerializeSummaryWrites run write sequences of one owner one at a time in this process
	// SerializeSummaryWrites 在本进程内串行执行同一所有者的写序列
	SerializeSummaryWrites bool
	// BackendTimeout bounds work that no single caller may cancel: loads shared by
	// concurrent readers and cache maintenance after a durable write
	// BackendTimeout 不受单个调用方取消影响的工作的超时：并发读共享的回源加载，以及写入主存储后的缓存维护
	BackendTimeout time.Duration
}

// DefaultSlidingExpiration used when the configuration leaves it empty
// DefaultSlidingExpiration 配置为空时使用
const DefaultSlidingExpiration = 20 * time.Minute

// DefaultBackendTimeout used when the configuration leaves it empty
// DefaultBackendTimeout 配置为空时使用
const DefaultBackendTimeout = 10 * time.Second
