package dao

import (
	"context"
	"errors"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// noteRepository 实现 domain.NoteStore 接口
type noteRepository struct {
	dao *Dao
}

// NewNoteRepository 创建 NoteStore 实例
func NewNoteRepository(dao *Dao) domain.NoteStore {
	return &noteRepository{dao: dao}
}

// toDomain 将数据库模型显式映射为领域模型，时间统一为 UTC
func (r *noteRepository) toDomain(m *model.Note) *domain.Note {
	if m == nil {
		return nil
	}
	return &domain.Note{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// toModel 将领域模型转换为数据库模型
func (r *noteRepository) toModel(n *domain.Note) *model.Note {
	return &model.Note{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

// Upsert 插入或更新笔记；ID 为空时分配 uuid，更新时不修改 owner_id 与 created_at，返回存储中的规范记录
func (r *noteRepository) Upsert(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	if note == nil {
		return nil, domain.NewValidationError("note", "is nil")
	}

	m := r.toModel(note)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	var saved model.Note
	err := r.dao.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 所有者不可变：ID 已属于其他所有者时按不存在处理
		var existing model.Note
		err := tx.Select("owner_id").Where("id = ?", m.ID).Take(&existing).Error
		switch {
		case err == nil && existing.OwnerID != m.OwnerID:
			return domain.NewNotFoundError("note", m.ID)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "updated_at"}),
		}).Create(m).Error
		if err != nil {
			return err
		}
		return tx.Where("id = ?", m.ID).Take(&saved).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "upsert", Err: err}
	}

	return r.toDomain(&saved), nil
}

// GetByID 根据 ID 获取笔记
func (r *noteRepository) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	var m model.Note
	err := r.dao.Db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("note", id)
		}
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return r.toDomain(&m), nil
}

// DeleteByID 根据 ID 物理删除笔记
func (r *noteRepository) DeleteByID(ctx context.Context, id string) error {
	res := r.dao.Db.WithContext(ctx).Where("id = ?", id).Delete(&model.Note{})
	if res.Error != nil {
		return &domain.StoreError{Op: "delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return domain.NewNotFoundError("note", id)
	}
	return nil
}

// ListByOwner 获取所有者的全部笔记，按创建时间、ID 排序
func (r *noteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	var ms []*model.Note
	err := r.dao.Db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").Order("id ASC").
		Find(&ms).Error
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}

	notes := make([]*domain.Note, 0, len(ms))
	for _, m := range ms {
		notes = append(notes, r.toDomain(m))
	}
	return notes, nil
}
