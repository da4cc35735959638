// Package domain 定义领域模型和接口
package domain

import (
	"context"
	"time"
)

// NoteStore 笔记主存储接口，存储是唯一可信来源
type NoteStore interface {
	// Upsert 插入或更新笔记，ID 为空时由存储分配，返回带规范 ID 的笔记
	Upsert(ctx context.Context, note *Note) (*Note, error)

	// GetByID 根据 ID 读取笔记，不存在时返回 NotFoundError
	GetByID(ctx context.Context, id string) (*Note, error)

	// DeleteByID 根据 ID 删除笔记，不存在时返回 NotFoundError
	DeleteByID(ctx context.Context, id string) error

	// ListByOwner 查询所有者的全部笔记，按创建时间排序
	ListByOwner(ctx context.Context, ownerID string) ([]*Note, error)
}

// Cache 字符串键值缓存，滑动过期
type Cache interface {
	// GetString 读取缓存，ok 为 false 表示未命中
	GetString(ctx context.Context, key string) (value string, ok bool, err error)

	// SetString 写入缓存并设置滑动过期时间
	SetString(ctx context.Context, key, value string, sliding time.Duration) error

	// Remove 删除缓存，键不存在不是错误
	Remove(ctx context.Context, key string) error
}

// EventPublisher 使用事件发布接口，投递为尽力而为
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}
