// Package domain 定义领域模型和接口
package domain

import "time"

// ReservedNoteID 所有者摘要列表占用的缓存键段，不能作为笔记 ID
const ReservedNoteID = "summary"

// Note 笔记领域模型
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NoteSummary 笔记摘要，按所有者聚合的列表项
type NoteSummary struct {
	OwnerID   string    `json:"ownerId"`
	NoteID    string    `json:"noteId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone 返回笔记副本
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Summary 生成笔记摘要
func (n *Note) Summary() *NoteSummary {
	return &NoteSummary{
		OwnerID:   n.OwnerID,
		NoteID:    n.ID,
		Title:     n.Title,
		CreatedAt: n.CreatedAt,
	}
}

// SummariesOf 将笔记列表投影为摘要列表，保持顺序
func SummariesOf(notes []*Note) []*NoteSummary {
	out := make([]*NoteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Summary())
	}
	return out
}

// NoteCacheKey 单条笔记的缓存键 {ownerId}/{noteId}
func NoteCacheKey(ownerID, noteID string) string {
	return ownerID + "/" + noteID
}

// SummaryCacheKey 所有者摘要列表的缓存键 {ownerId}/summary
func SummaryCacheKey(ownerID string) string {
	return ownerID + "/" + ReservedNoteID
}
