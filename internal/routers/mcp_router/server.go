// Package mcp_router exposes the note operations as MCP tools
// Package mcp_router 以 MCP 工具的形式提供笔记操作
package mcp_router

import (
	"context"
	"errors"
	"fmt"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/dto"
	"github.com/haierkeys/psnotes-service/internal/service"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// NoteTools MCP 笔记工具集
type NoteTools struct {
	notes  service.NoteService
	logger *zap.Logger
}

// NewNoteTools 创建 MCP 笔记工具集
func NewNoteTools(notes service.NoteService, lg *zap.Logger) *NoteTools {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &NoteTools{notes: notes, logger: lg}
}

// NewMCPServer 注册全部笔记工具
func (t *NoteTools) NewMCPServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Retrieve one note of a user by its id."),
		mcp.WithString("username", mcp.Required(), mcp.Description("Owner of the note")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), t.getNote)

	s.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the note summaries (id, title, creation time) of a user."),
		mcp.WithString("username", mcp.Required(), mcp.Description("Owner of the notes")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	), t.listNotes)

	s.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create a note, or modify an existing note of the user when id is given."),
		mcp.WithString("username", mcp.Required(), mcp.Description("Owner of the note")),
		mcp.WithString("id", mcp.Description("Id of the note to modify, empty to create")),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	), t.saveNote)

	s.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete one note of a user."),
		mcp.WithString("username", mcp.Required(), mcp.Description("Owner of the note")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	), t.deleteNote)

	return s
}

// NewServer 创建无状态的 Streamable HTTP MCP 服务
func NewServer(notes service.NoteService, lg *zap.Logger, name, version string) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(NewNoteTools(notes, lg).NewMCPServer(name, version), server.WithStateLess(true))
}

func (t *NoteTools) getNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	note, err := t.notes.Get(ctx, username, &dto.NoteGetRequest{Username: username, ID: id})
	if err != nil {
		return t.toolError("get_note", err), nil
	}
	return jsonResult(note)
}

func (t *NoteTools) listNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}

	list, err := t.notes.List(ctx, username)
	if err != nil {
		return t.toolError("list_notes", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No notes found."), nil
	}
	return jsonResult(list)
}

func (t *NoteTools) saveNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}

	note, err := t.notes.Save(ctx, username, &dto.NoteSaveRequest{
		Username: username,
		ID:       request.GetString("id", ""),
		Title:    request.GetString("title", ""),
		Content:  request.GetString("content", ""),
	})
	if err != nil {
		return t.toolError("save_note", err), nil
	}
	return jsonResult(note)
}

func (t *NoteTools) deleteNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username, err := request.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError("username is required"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	if err := t.notes.Delete(ctx, username, &dto.NoteDeleteRequest{Username: username, ID: id}); err != nil {
		return t.toolError("delete_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note %s deleted.", id)), nil
}

// toolError 工具调用失败以结果返回给模型，只有预期外的错误记录 error 日志
func (t *NoteTools) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return mcp.NewToolResultError("note not found")
	case errors.Is(err, domain.ErrValidation):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, domain.ErrRetryable):
		t.logger.Warn("mcp tool failed", zap.String(logger.FieldAction, tool), zap.Error(err))
		return mcp.NewToolResultError("operation incomplete, please retry")
	}
	t.logger.Error("mcp tool failed", zap.String(logger.FieldAction, tool), zap.Error(err))
	return mcp.NewToolResultError("internal error")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := sonic.MarshalString(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(out), nil
}
