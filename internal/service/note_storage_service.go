package service

import (
	"context"
	"strings"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// KeyedExecutor runs fn after every earlier fn submitted under the same key has finished
// KeyedExecutor 在同一键下先前提交的 fn 全部完成后再执行 fn
type KeyedExecutor interface {
	Execute(ctx context.Context, key string, fn func(context.Context) error) error
}

// NoteStorageService cache-aside note storage over the primary store and the distributed cache
// NoteStorageService 基于主存储和分布式缓存的旁路缓存笔记存储
type NoteStorageService interface {
	// GetNote returns one note of the owner, NotFoundError when it does not exist
	// GetNote 读取所有者的一条笔记，不存在时返回 NotFoundError
	GetNote(ctx context.Context, ownerID, noteID string) (*domain.Note, error)

	// SaveNote persists the note and refreshes its cache entry and the owner summary list.
	// note.ID is overwritten with the id assigned by the store.
	// SaveNote 持久化笔记，并刷新笔记缓存和所有者摘要列表；note.ID 会被改写为存储分配的 ID
	SaveNote(ctx context.Context, note *domain.Note) (*domain.Note, error)

	// DeleteNote removes the note from the store, the cache and the owner summary list
	// DeleteNote 从存储、缓存和所有者摘要列表中删除笔记
	DeleteNote(ctx context.Context, ownerID, noteID string) error

	// ListNotes returns the summary list of the owner, empty on any backend failure
	// ListNotes 返回所有者的摘要列表，后端故障时返回空列表
	ListNotes(ctx context.Context, ownerID string) ([]*domain.NoteSummary, error)
}

type noteStorageService struct {
	store  domain.NoteStore
	cache  domain.Cache
	queue  KeyedExecutor
	sf     singleflight.Group
	logger *zap.Logger
	config NoteServiceConfig
}

// NewNoteStorageService creates the note storage. queue may be nil, then
// writes of one owner are not serialized.
// NewNoteStorageService 创建笔记存储，queue 可为 nil，此时不串行化同一所有者的写操作
func NewNoteStorageService(store domain.NoteStore, cache domain.Cache, queue KeyedExecutor, lg *zap.Logger, cfg NoteServiceConfig) NoteStorageService {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.SlidingExpiration <= 0 {
		cfg.SlidingExpiration = DefaultSlidingExpiration
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultBackendTimeout
	}
	if !cfg.SerializeSummaryWrites {
		queue = nil
	}
	return &noteStorageService{
		store:  store,
		cache:  cache,
		queue:  queue,
		logger: lg,
		config: cfg,
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validateOwner(ownerID string) error {
	if isBlank(ownerID) {
		return domain.NewValidationError("ownerId", "required")
	}
	return nil
}

func validateNoteKey(ownerID, noteID string) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	if isBlank(noteID) {
		return domain.NewValidationError("noteId", "required")
	}
	if noteID == domain.ReservedNoteID {
		return domain.NewValidationError("noteId", "reserved")
	}
	return nil
}

// GetNote 读取笔记，先查缓存，未命中时回源主存储并回填缓存
func (s *noteStorageService) GetNote(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NoteStorage.GetNote")
	defer span.Finish()

	if err := validateNoteKey(ownerID, noteID); err != nil {
		return nil, err
	}

	key := domain.NoteCacheKey(ownerID, noteID)
	if note, ok := s.cachedNote(ctx, key, ownerID, noteID); ok {
		span.SetTag("cache.hit", true)
		return note, nil
	}
	span.SetTag("cache.hit", false)

	v, err := s.shared(ctx, "note:"+key, func(ctx context.Context) (any, error) {
		note, err := s.store.GetByID(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if note.OwnerID != ownerID {
			return nil, domain.NewNotFoundError("note", noteID)
		}
		s.cacheNote(ctx, key, note)
		return note, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Note).Clone(), nil
}

// SaveNote 保存笔记：写主存储、写笔记缓存、刷新摘要列表
func (s *noteStorageService) SaveNote(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NoteStorage.SaveNote")
	defer span.Finish()

	if note == nil {
		return nil, domain.NewValidationError("note", "required")
	}
	if err := validateOwner(note.OwnerID); err != nil {
		return nil, err
	}
	if note.ID != "" && isBlank(note.ID) {
		return nil, domain.NewValidationError("noteId", "blank")
	}
	if note.ID == domain.ReservedNoteID {
		return nil, domain.NewValidationError("noteId", "reserved")
	}

	var stored *domain.Note
	err := s.withOwner(ctx, note.OwnerID, func(ctx context.Context) error {
		var err error
		stored, err = s.store.Upsert(ctx, note)
		if err != nil {
			return err
		}

		// the write is durable, the cache must follow it even if the caller goes away
		// 主存储写入已生效，即使调用方离开缓存也必须跟进
		ctx, cancel := s.detached(ctx)
		defer cancel()

		noteKey := domain.NoteCacheKey(stored.OwnerID, stored.ID)
		if err := s.writeNote(ctx, noteKey, stored); err != nil {
			s.invalidate(ctx, noteKey, domain.SummaryCacheKey(stored.OwnerID))
			return err
		}

		if err := s.refreshSummary(ctx, stored); err != nil {
			s.invalidate(ctx, domain.SummaryCacheKey(stored.OwnerID))
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("save note failed",
			zap.String(logger.FieldOwner, note.OwnerID),
			zap.String(logger.FieldNoteID, note.ID),
			zap.Error(err))
		if stored != nil {
			note.ID = stored.ID
		}
		return nil, err
	}

	note.ID = stored.ID
	return stored.Clone(), nil
}

// refreshSummary 将最新摘要替换进所有者的摘要列表
func (s *noteStorageService) refreshSummary(ctx context.Context, stored *domain.Note) error {
	summaries, err := s.loadSummaries(ctx, stored.OwnerID)
	if err != nil {
		return err
	}

	next := make([]*domain.NoteSummary, 0, len(summaries)+1)
	for _, item := range summaries {
		if item.NoteID != stored.ID {
			next = append(next, item)
		}
	}
	next = append(next, stored.Summary())

	return s.saveNoteList(ctx, stored.OwnerID, next)
}

// DeleteNote 删除笔记：删主存储、删笔记缓存、从摘要列表移除
func (s *noteStorageService) DeleteNote(ctx context.Context, ownerID, noteID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NoteStorage.DeleteNote")
	defer span.Finish()

	if err := validateNoteKey(ownerID, noteID); err != nil {
		return err
	}

	err := s.withOwner(ctx, ownerID, func(ctx context.Context) error {
		if err := s.store.DeleteByID(ctx, noteID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		ctx, cancel := s.detached(ctx)
		defer cancel()

		noteKey := domain.NoteCacheKey(ownerID, noteID)
		if err := s.cache.Remove(ctx, noteKey); err != nil {
			s.invalidate(ctx, domain.SummaryCacheKey(ownerID))
			return &domain.CacheError{Op: "remove", Key: noteKey, Err: err}
		}

		summaries, err := s.loadSummaries(ctx, ownerID)
		if err != nil {
			return err
		}
		next := make([]*domain.NoteSummary, 0, len(summaries))
		for _, item := range summaries {
			if item.NoteID != noteID {
				next = append(next, item)
			}
		}
		if err := s.saveNoteList(ctx, ownerID, next); err != nil {
			s.invalidate(ctx, domain.SummaryCacheKey(ownerID))
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String(logger.FieldOwner, ownerID),
		zap.String(logger.FieldNoteID, noteID),
		zap.Error(err),
	}
	if s.config.LenientDelete {
		s.logger.Warn("delete note incomplete, ignored", fields...)
		return nil
	}
	s.logger.Warn("delete note incomplete", fields...)
	return &domain.RetryableError{Op: "delete note", Err: err}
}

// ListNotes 列出所有者的笔记摘要，除校验错误外任何失败都返回空列表
func (s *noteStorageService) ListNotes(ctx context.Context, ownerID string) ([]*domain.NoteSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NoteStorage.ListNotes")
	defer span.Finish()

	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	if summaries, ok := s.cachedSummaries(ctx, ownerID); ok {
		span.SetTag("cache.hit", true)
		return summaries, nil
	}
	span.SetTag("cache.hit", false)

	var summaries []*domain.NoteSummary
	err := s.withOwner(ctx, ownerID, func(ctx context.Context) error {
		var err error
		summaries, err = s.loadSummaries(ctx, ownerID)
		return err
	})
	if err != nil {
		s.logger.Warn("list notes failed, returning empty list",
			zap.String(logger.FieldOwner, ownerID),
			zap.Error(err))
		return []*domain.NoteSummary{}, nil
	}

	return summaries, nil
}

// loadSummaries 读取摘要列表，缓存未命中时从主存储重建并写回缓存
func (s *noteStorageService) loadSummaries(ctx context.Context, ownerID string) ([]*domain.NoteSummary, error) {
	if summaries, ok := s.cachedSummaries(ctx, ownerID); ok {
		return summaries, nil
	}

	v, err := s.shared(ctx, "summary:"+ownerID, func(ctx context.Context) (any, error) {
		notes, err := s.store.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		summaries := domain.SummariesOf(notes)
		if err := s.saveNoteList(ctx, ownerID, summaries); err != nil {
			s.logger.Warn("cache summary list failed",
				zap.String(logger.FieldOwner, ownerID),
				zap.Error(err))
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}

	return copySummaries(v.([]*domain.NoteSummary)), nil
}

// saveNoteList 持久化摘要列表，所有条目必须属于 ownerID
func (s *noteStorageService) saveNoteList(ctx context.Context, ownerID string, summaries []*domain.NoteSummary) error {
	for _, item := range summaries {
		if item == nil {
			return domain.NewValidationError("summaries", "nil entry")
		}
		if item.OwnerID != ownerID {
			return domain.NewValidationError("summaries", "entries of more than one owner")
		}
	}
	if summaries == nil {
		summaries = []*domain.NoteSummary{}
	}

	key := domain.SummaryCacheKey(ownerID)
	value, err := encode(summaries)
	if err != nil {
		return &domain.CacheError{Op: "encode", Key: key, Err: err}
	}
	if err := s.cache.SetString(ctx, key, value, s.config.SlidingExpiration); err != nil {
		return &domain.CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *noteStorageService) writeNote(ctx context.Context, key string, note *domain.Note) error {
	value, err := encode(note)
	if err != nil {
		return &domain.CacheError{Op: "encode", Key: key, Err: err}
	}
	if err := s.cache.SetString(ctx, key, value, s.config.SlidingExpiration); err != nil {
		return &domain.CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// cacheNote 回填读缓存，失败只记录日志
func (s *noteStorageService) cacheNote(ctx context.Context, key string, note *domain.Note) {
	if err := s.writeNote(ctx, key, note); err != nil {
		s.logger.Warn("populate note cache failed",
			zap.String(logger.FieldCacheKey, key),
			zap.Error(err))
	}
}

func (s *noteStorageService) cachedNote(ctx context.Context, key, ownerID, noteID string) (*domain.Note, bool) {
	value, ok := s.readCache(ctx, key)
	if !ok {
		return nil, false
	}
	var note domain.Note
	if err := decode(value, &note); err != nil {
		s.logger.Warn("undecodable note cache entry",
			zap.String(logger.FieldCacheKey, key),
			zap.Error(err))
		return nil, false
	}
	if note.ID != noteID || note.OwnerID != ownerID {
		s.logger.Warn("note cache entry does not match its key",
			zap.String(logger.FieldCacheKey, key))
		return nil, false
	}
	return &note, true
}

func (s *noteStorageService) cachedSummaries(ctx context.Context, ownerID string) ([]*domain.NoteSummary, bool) {
	key := domain.SummaryCacheKey(ownerID)
	value, ok := s.readCache(ctx, key)
	if !ok {
		return nil, false
	}
	var summaries []*domain.NoteSummary
	if err := decode(value, &summaries); err != nil {
		s.logger.Warn("undecodable summary cache entry",
			zap.String(logger.FieldCacheKey, key),
			zap.Error(err))
		return nil, false
	}
	for _, item := range summaries {
		if item == nil || item.OwnerID != ownerID {
			s.logger.Warn("summary cache entry does not match its key",
				zap.String(logger.FieldCacheKey, key))
			return nil, false
		}
	}
	if summaries == nil {
		summaries = []*domain.NoteSummary{}
	}
	return summaries, true
}

// readCache 缓存故障按未命中处理
func (s *noteStorageService) readCache(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.cache.GetString(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss",
			zap.String(logger.FieldCacheKey, key),
			zap.Error(err))
		return "", false
	}
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// invalidate 尽力删除缓存键，让下次读取从主存储重建
func (s *noteStorageService) invalidate(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.cache.Remove(ctx, key); err != nil {
			s.logger.Error("invalidate cache key failed",
				zap.String(logger.FieldCacheKey, key),
				zap.Error(err))
		}
	}
}

// shared collapses concurrent loads of one key. The load runs detached from any
// single caller, each caller stops waiting when its own ctx ends.
// shared 合并同一键的并发加载，加载不受任一调用方取消影响，每个调用方只在自己的 ctx 结束时停止等待
func (s *noteStorageService) shared(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.sf.DoChan(key, func() (any, error) {
		ctx, cancel := s.detached(ctx)
		defer cancel()
		return load(ctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// detached keeps the values of ctx (trace span, request id) but not its cancellation
func (s *noteStorageService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.config.BackendTimeout)
}

func (s *noteStorageService) withOwner(ctx context.Context, ownerID string, fn func(context.Context) error) error {
	if s.queue == nil {
		return fn(ctx)
	}
	return s.queue.Execute(ctx, ownerID, fn)
}

func copySummaries(in []*domain.NoteSummary) []*domain.NoteSummary {
	out := make([]*domain.NoteSummary, 0, len(in))
	for _, item := range in {
		c := *item
		out = append(out, &c)
	}
	return out
}
