package logger

// 统一的日志字段命名常量
// Shared log field names, keep queries across components consistent
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldOwner 笔记所有者字段
	FieldOwner = "owner"

	// FieldNoteID 笔记 ID 字段
	FieldNoteID = "noteId"

	// FieldCacheKey 缓存键字段
	FieldCacheKey = "cacheKey"

	// FieldEventType 事件类型字段
	FieldEventType = "eventType"

	// FieldSubject NATS 主题字段
	FieldSubject = "subject"

	// FieldBucket KV 存储桶字段
	FieldBucket = "bucket"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldCount 数量字段
	FieldCount = "count"
)
