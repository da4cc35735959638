package model

import "time"

// Note 笔记表，表名 note（受表前缀影响）
type Note struct {
	ID        string    `gorm:"column:id;type:varchar(64);primaryKey" json:"id" form:"id"`
	OwnerID   string    `gorm:"column:owner_id;type:varchar(255);not null;index:idx_note_owner_created,priority:1" json:"ownerId" form:"ownerId"`
	Title     string    `gorm:"column:title;type:varchar(512);not null;default:''" json:"title" form:"title"`
	Content   string    `gorm:"column:content;type:text" json:"content" form:"content"`
	CreatedAt time.Time `gorm:"column:created_at;index:idx_note_owner_created,priority:2" json:"createdAt" form:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt" form:"updatedAt"`
}
