package mcp_router

import (
	"context"
	"testing"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/dto"
	"github.com/haierkeys/psnotes-service/internal/service"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNotes 内存版 NoteService
type stubNotes struct {
	notes map[string]*dto.NoteDTO
	seq   int
}

var _ service.NoteService = (*stubNotes)(nil)

func newStubNotes() *stubNotes { return &stubNotes{notes: map[string]*dto.NoteDTO{}} }

func (s *stubNotes) Get(_ context.Context, username string, p *dto.NoteGetRequest) (*dto.NoteDTO, error) {
	n, ok := s.notes[p.ID]
	if !ok || n.OwnerID != username {
		return nil, domain.NewNotFoundError("note", p.ID)
	}
	return n, nil
}

func (s *stubNotes) Save(_ context.Context, username string, p *dto.NoteSaveRequest) (*dto.NoteDTO, error) {
	if p.ID == domain.ReservedNoteID {
		return nil, domain.NewValidationError("id", "reserved")
	}
	id := p.ID
	if id == "" {
		s.seq++
		id = string(rune('a' + s.seq))
	}
	n := &dto.NoteDTO{ID: id, OwnerID: username, Title: p.Title, Content: p.Content}
	s.notes[id] = n
	return n, nil
}

func (s *stubNotes) List(_ context.Context, username string) ([]*dto.NoteSummaryDTO, error) {
	out := []*dto.NoteSummaryDTO{}
	for _, n := range s.notes {
		if n.OwnerID == username {
			out = append(out, &dto.NoteSummaryDTO{OwnerID: username, NoteID: n.ID, Title: n.Title})
		}
	}
	return out, nil
}

func (s *stubNotes) Delete(_ context.Context, username string, p *dto.NoteDeleteRequest) error {
	if _, err := s.Get(context.Background(), username, &dto.NoteGetRequest{ID: p.ID}); err != nil {
		return err
	}
	delete(s.notes, p.ID)
	return nil
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNoteTools_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tools := NewNoteTools(newStubNotes(), nil)

	res, err := tools.saveNote(ctx, call(map[string]any{"username": "alice", "title": "t", "content": "c"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var saved dto.NoteDTO
	require.NoError(t, sonic.UnmarshalString(text(t, res), &saved))
	assert.Equal(t, "alice", saved.OwnerID)

	res, err = tools.getNote(ctx, call(map[string]any{"username": "alice", "id": saved.ID}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"content":"c"`)

	res, err = tools.listNotes(ctx, call(map[string]any{"username": "alice"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), saved.ID)

	res, err = tools.deleteNote(ctx, call(map[string]any{"username": "alice", "id": saved.ID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = tools.listNotes(ctx, call(map[string]any{"username": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "No notes found.", text(t, res))
}

func TestNoteTools_Errors(t *testing.T) {
	ctx := context.Background()
	tools := NewNoteTools(newStubNotes(), nil)

	res, err := tools.getNote(ctx, call(map[string]any{"id": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.getNote(ctx, call(map[string]any{"username": "alice", "id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "note not found", text(t, res))

	res, err = tools.saveNote(ctx, call(map[string]any{"username": "alice", "id": domain.ReservedNoteID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	s := NewNoteTools(newStubNotes(), nil).NewMCPServer("psnotes", "test")
	reply := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	resp, ok := reply.(mcp.JSONRPCResponse)
	require.True(t, ok)
	result, ok := resp.Result.(mcp.ListToolsResult)
	require.True(t, ok)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"get_note", "list_notes", "save_note", "delete_note"}, names)
}
