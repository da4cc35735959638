// Package service 实现业务逻辑层
package service

import (
	"context"
	"time"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/dto"
	"github.com/haierkeys/psnotes-service/pkg/logger"
	"github.com/haierkeys/psnotes-service/pkg/util"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EventEmitter 事件发送接口，发送是尽力而为的，不返回错误
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event)
}

// NoteService 定义笔记业务服务接口
type NoteService interface {
	// Get 获取单条笔记
	Get(ctx context.Context, username string, params *dto.NoteGetRequest) (*dto.NoteDTO, error)

	// Save 创建或修改笔记，ID 为空时创建
	Save(ctx context.Context, username string, params *dto.NoteSaveRequest) (*dto.NoteDTO, error)

	// List 获取笔记摘要列表
	List(ctx context.Context, username string) ([]*dto.NoteSummaryDTO, error)

	// Delete 删除笔记
	Delete(ctx context.Context, username string, params *dto.NoteDeleteRequest) error
}

type noteService struct {
	storage NoteStorageService
	events  EventEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewNoteService 创建 NoteService 实例
func NewNoteService(storage NoteStorageService, events EventEmitter, lg *zap.Logger) NoteService {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &noteService{
		storage: storage,
		events:  events,
		logger:  lg,
		now:     util.NowUTCMilli,
	}
}

// Get 获取单条笔记并发送 NoteViewed 事件
func (s *noteService) Get(ctx context.Context, username string, params *dto.NoteGetRequest) (*dto.NoteDTO, error) {
	note, err := s.storage.GetNote(ctx, username, params.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("getting note",
		zap.String(logger.FieldOwner, username),
		zap.String(logger.FieldNoteID, note.ID))
	s.emit(ctx, domain.EventNoteViewed, username, note.ID)

	return toNoteDTO(note)
}

// Save 创建或修改笔记
// 修改时先确认笔记属于当前用户并保留原创建时间
func (s *noteService) Save(ctx context.Context, username string, params *dto.NoteSaveRequest) (*dto.NoteDTO, error) {
	note := &domain.Note{
		ID:      params.ID,
		Title:   params.Title,
		Content: params.Content,
	}

	eventType := domain.EventNoteEdited
	if note.ID == "" {
		note.CreatedAt = s.now()
		eventType = domain.EventNoteCreated
		s.logger.Info("creating new note", zap.String(logger.FieldOwner, username))
	} else {
		original, err := s.storage.GetNote(ctx, username, note.ID)
		if err != nil {
			return nil, err
		}
		note.CreatedAt = original.CreatedAt
		s.logger.Info("saving changes to existing note",
			zap.String(logger.FieldOwner, username),
			zap.String(logger.FieldNoteID, note.ID))
	}

	// 所有者总是当前用户，不信任请求体
	note.OwnerID = username

	stored, err := s.storage.SaveNote(ctx, note)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, eventType, username, stored.ID)

	return toNoteDTO(stored)
}

// List 获取笔记摘要列表
func (s *noteService) List(ctx context.Context, username string) ([]*dto.NoteSummaryDTO, error) {
	summaries, err := s.storage.ListNotes(ctx, username)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("getting note list",
		zap.String(logger.FieldOwner, username),
		zap.Int(logger.FieldCount, len(summaries)))

	out := make([]*dto.NoteSummaryDTO, 0, len(summaries))
	for _, item := range summaries {
		d, err := toNoteSummaryDTO(item)
		if err != nil {
			s.logger.Error("convert note summary failed",
				zap.String(logger.FieldOwner, username),
				zap.Error(err))
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Delete 删除笔记，先确认笔记属于当前用户
func (s *noteService) Delete(ctx context.Context, username string, params *dto.NoteDeleteRequest) error {
	if _, err := s.storage.GetNote(ctx, username, params.ID); err != nil {
		return err
	}

	if err := s.storage.DeleteNote(ctx, username, params.ID); err != nil {
		return err
	}

	s.logger.Info("deleted note",
		zap.String(logger.FieldOwner, username),
		zap.String(logger.FieldNoteID, params.ID))
	s.emit(ctx, domain.EventNoteDeleted, username, params.ID)

	return nil
}

func (s *noteService) emit(ctx context.Context, t domain.EventType, username, noteID string) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, domain.NewEvent(t, username, noteID))
}

var timeToString = copier.TypeConverter{
	SrcType: time.Time{},
	DstType: copier.String,
	Fn: func(src any) (any, error) {
		return src.(time.Time).UTC().Format(time.RFC3339Nano), nil
	},
}

var dtoCopyOption = copier.Option{Converters: []copier.TypeConverter{timeToString}}

func toNoteDTO(note *domain.Note) (*dto.NoteDTO, error) {
	out := &dto.NoteDTO{}
	if err := copier.CopyWithOption(out, note, dtoCopyOption); err != nil {
		return nil, errors.Wrap(err, "convert note")
	}
	return out, nil
}

func toNoteSummaryDTO(item *domain.NoteSummary) (*dto.NoteSummaryDTO, error) {
	out := &dto.NoteSummaryDTO{}
	if err := copier.CopyWithOption(out, item, dtoCopyOption); err != nil {
		return nil, errors.Wrap(err, "convert note summary")
	}
	return out, nil
}
