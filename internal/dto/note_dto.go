// Package dto Defines data transfer objects (request parameters and response structs)
// Package dto 定义数据传输对象（请求参数和响应结构体）
package dto

// NoteDTO Note data transfer object
// NoteDTO 笔记数据传输对象
type NoteDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// NoteSummaryDTO Note list item, without content
// NoteSummaryDTO 笔记列表项，不包含内容
type NoteSummaryDTO struct {
	OwnerID   string `json:"ownerId"`
	NoteID    string `json:"noteId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

// NoteGetRequest Request parameters for getting a single note
// NoteGetRequest 获取单条笔记的请求参数
type NoteGetRequest struct {
	Username string `uri:"username" json:"-" form:"-" binding:"required,max=128"`
	ID       string `uri:"id" json:"-" form:"-" binding:"required,max=64"`
}

// NoteDeleteRequest Request parameters for deleting a note
// NoteDeleteRequest 删除笔记的请求参数
type NoteDeleteRequest struct {
	Username string `uri:"username" json:"-" form:"-" binding:"required,max=128"`
	ID       string `uri:"id" json:"-" form:"-" binding:"required,max=64"`
}

// NoteListRequest Request parameters for listing the notes of a user
// NoteListRequest 获取用户笔记列表的请求参数
type NoteListRequest struct {
	Username string `uri:"username" json:"-" form:"-" binding:"required,max=128"`
}

// NoteSaveRequest Request parameters for creating or modifying a note.
// An empty ID creates a new note.
// NoteSaveRequest 创建或修改笔记的请求参数，ID 为空时创建新笔记
type NoteSaveRequest struct {
	Username string `uri:"username" json:"-" form:"-" binding:"required,max=128"`
	ID       string `json:"id" form:"id" binding:"max=64"`
	Title    string `json:"title" form:"title" binding:"max=512"`
	Content  string `json:"content" form:"content"`
}
