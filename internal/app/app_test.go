package app

import (
	"context"
	"testing"
	"time"

	"github.com/haierkeys/psnotes-service/internal/dao"
	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/dto"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, yaml string) *App {
	t.Helper()
	cfg, err := ParseConfig([]byte(yaml))
	require.NoError(t, err)
	cfg.Database.Path = ":memory:"

	db, err := dao.NewDBEngineWithConfig(cfg.GetDatabaseConfig(), zap.NewNop())
	require.NoError(t, err)

	a, err := NewApp(context.Background(), cfg, zap.NewNop(), db, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNewApp_RequiresDependencies(t *testing.T) {
	_, err := NewApp(context.Background(), nil, zap.NewNop(), nil)
	assert.Error(t, err)

	cfg, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)
	_, err = NewApp(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
	_, err = NewApp(context.Background(), cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestApp_NoteLifecycle(t *testing.T) {
	a := newTestApp(t, "events:\n  publisher: log\n")
	ctx := context.Background()

	require.NotNil(t, a.MemoryCache)
	require.NotNil(t, a.Dispatcher)

	created, err := a.NoteService.Save(ctx, "alice", &dto.NoteSaveRequest{Title: "first", Content: "body"})
	require.NoError(t, err)

	got, err := a.NoteService.Get(ctx, "alice", &dto.NoteGetRequest{ID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)

	list, err := a.NoteService.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].NoteID)

	require.NoError(t, a.NoteService.Delete(ctx, "alice", &dto.NoteDeleteRequest{ID: created.ID}))
	_, err = a.NoteService.Get(ctx, "alice", &dto.NoteGetRequest{ID: created.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	a := newTestApp(t, "events:\n  publisher: none\n")
	assert.Nil(t, a.Dispatcher)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.True(t, a.IsShuttingDown())
	assert.NoError(t, a.Shutdown(context.Background()))
}
