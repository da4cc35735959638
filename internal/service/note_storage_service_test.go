package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/pkg/cache"
	"github.com/haierkeys/psnotes-service/pkg/writequeue"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeStore in-memory NoteStore with failure injection
type fakeStore struct {
	mu    sync.Mutex
	notes map[string]*domain.Note
	order []string

	getCalls  atomic.Int32
	listCalls atomic.Int32

	failUpsert error
	failGet    error
	failDelete error
	failList   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: map[string]*domain.Note{}}
}

func (f *fakeStore) Upsert(_ context.Context, note *domain.Note) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return nil, &domain.StoreError{Op: "upsert", Err: f.failUpsert}
	}
	saved := note.Clone()
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if existing, ok := f.notes[saved.ID]; ok {
		if existing.OwnerID != saved.OwnerID {
			return nil, domain.NewNotFoundError("note", saved.ID)
		}
		saved.CreatedAt = existing.CreatedAt
	} else {
		f.order = append(f.order, saved.ID)
	}
	f.notes[saved.ID] = saved
	return saved.Clone(), nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*domain.Note, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, &domain.StoreError{Op: "get", Err: f.failGet}
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, domain.NewNotFoundError("note", id)
	}
	return n.Clone(), nil
}

func (f *fakeStore) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return &domain.StoreError{Op: "delete", Err: f.failDelete}
	}
	if _, ok := f.notes[id]; !ok {
		return domain.NewNotFoundError("note", id)
	}
	delete(f.notes, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.Note, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, &domain.StoreError{Op: "list", Err: f.failList}
	}
	var out []*domain.Note
	for _, id := range f.order {
		if n := f.notes[id]; n.OwnerID == ownerID {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// flakyCache wraps a cache and fails selected operations
type flakyCache struct {
	domain.Cache
	failGet    bool
	failSetFor func(key string) bool
	failRemove bool
	removed    []string
}

func (c *flakyCache) GetString(ctx context.Context, key string) (string, bool, error) {
	if c.failGet {
		return "", false, errBoom
	}
	return c.Cache.GetString(ctx, key)
}

func (c *flakyCache) SetString(ctx context.Context, key, value string, sliding time.Duration) error {
	if c.failSetFor != nil && c.failSetFor(key) {
		return errBoom
	}
	return c.Cache.SetString(ctx, key, value, sliding)
}

func (c *flakyCache) Remove(ctx context.Context, key string) error {
	c.removed = append(c.removed, key)
	if c.failRemove {
		return errBoom
	}
	return c.Cache.Remove(ctx, key)
}

func newTestStorage(store domain.NoteStore, c domain.Cache) NoteStorageService {
	return NewNoteStorageService(store, c, nil, nil, NoteServiceConfig{SlidingExpiration: time.Minute})
}

func noteIDs(items []*domain.NoteSummary) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.NoteID)
	}
	return ids
}

func TestNoteStorage_SaveAssignsIDAndPopulatesCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	note := &domain.Note{OwnerID: "alice", Title: "t", Content: "c", CreatedAt: time.Now().UTC()}
	stored, err := s.SaveNote(ctx, note)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	assert.Equal(t, stored.ID, note.ID, "caller's note carries the assigned id")

	raw, ok, err := mem.GetString(ctx, domain.NoteCacheKey("alice", stored.ID))
	require.NoError(t, err)
	require.True(t, ok)
	var cached domain.Note
	require.NoError(t, decode(raw, &cached))
	assert.Equal(t, "t", cached.Title)

	raw, ok, err = mem.GetString(ctx, domain.SummaryCacheKey("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	var summaries []*domain.NoteSummary
	require.NoError(t, decode(raw, &summaries))
	assert.Equal(t, []string{stored.ID}, noteIDs(summaries))
}

func TestNoteStorage_SaveValidation(t *testing.T) {
	s := newTestStorage(newFakeStore(), cache.NewMemory())

	_, err := s.SaveNote(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.SaveNote(context.Background(), &domain.Note{Title: "no owner"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.SaveNote(context.Background(), &domain.Note{ID: domain.ReservedNoteID, OwnerID: "alice"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNoteStorage_SaveUpdateReplacesSummaryEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(newFakeStore(), cache.NewMemory())

	a, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "a"})
	require.NoError(t, err)
	b, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "b"})
	require.NoError(t, err)

	_, err = s.SaveNote(ctx, &domain.Note{ID: a.ID, OwnerID: "alice", Title: "a2"})
	require.NoError(t, err)

	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{b.ID, a.ID}, noteIDs(list))
	assert.Equal(t, "a2", list[1].Title)
}

func TestNoteStorage_SaveStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = errBoom
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	_, err := s.SaveNote(context.Background(), &domain.Note{OwnerID: "alice"})
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Equal(t, 0, mem.Stats().Size)
}

func TestNoteStorage_SaveCacheFailureInvalidatesSummary(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	first, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "first"})
	require.NoError(t, err)

	flaky := &flakyCache{Cache: mem, failSetFor: func(key string) bool {
		return key == domain.SummaryCacheKey("alice")
	}}
	s = newTestStorage(store, flaky)

	second, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCache)
	assert.Nil(t, second)
	assert.Contains(t, flaky.removed, domain.SummaryCacheKey("alice"))

	// the durable write happened, the next list rebuilds from the store
	s = newTestStorage(store, mem)
	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].NoteID)
}

func TestNoteStorage_GetNote(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestStorage(store, cache.NewMemory())

	saved, err := store.Upsert(ctx, &domain.Note{OwnerID: "alice", Title: "t"})
	require.NoError(t, err)

	got, err := s.GetNote(ctx, "alice", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
	assert.EqualValues(t, 1, store.getCalls.Load())

	// served from cache
	got.Title = "mutated"
	again, err := s.GetNote(ctx, "alice", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
	assert.EqualValues(t, 1, store.getCalls.Load())
}

func TestNoteStorage_GetNoteValidation(t *testing.T) {
	s := newTestStorage(newFakeStore(), cache.NewMemory())

	cases := []struct{ owner, id string }{
		{"", "x"},
		{"alice", ""},
		{"alice", domain.ReservedNoteID},
	}
	for _, tc := range cases {
		_, err := s.GetNote(context.Background(), tc.owner, tc.id)
		assert.ErrorIs(t, err, domain.ErrValidation, "owner=%q id=%q", tc.owner, tc.id)
	}
}

func TestNoteStorage_GetNoteOtherOwnerIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	saved, err := store.Upsert(ctx, &domain.Note{OwnerID: "bob", Title: "secret"})
	require.NoError(t, err)

	_, err = s.GetNote(ctx, "alice", saved.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, ok, _ := mem.GetString(ctx, domain.NoteCacheKey("alice", saved.ID))
	assert.False(t, ok)
}

func TestNoteStorage_GetNoteMissingAndStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestStorage(store, cache.NewMemory())

	_, err := s.GetNote(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	store.failGet = errBoom
	_, err = s.GetNote(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, errBoom)
}

func TestNoteStorage_UndecodableCacheEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	saved, err := store.Upsert(ctx, &domain.Note{OwnerID: "alice", Title: "real"})
	require.NoError(t, err)
	require.NoError(t, mem.SetString(ctx, domain.NoteCacheKey("alice", saved.ID), "{not json", time.Minute))
	require.NoError(t, mem.SetString(ctx, domain.SummaryCacheKey("alice"), "[garbage", time.Minute))

	got, err := s.GetNote(ctx, "alice", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "real", got.Title)

	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{saved.ID}, noteIDs(list))
}

func TestNoteStorage_CacheReadFailureFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	flaky := &flakyCache{Cache: cache.NewMemory(), failGet: true}
	s := newTestStorage(store, flaky)

	saved, err := store.Upsert(ctx, &domain.Note{OwnerID: "alice", Title: "t"})
	require.NoError(t, err)

	got, err := s.GetNote(ctx, "alice", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
}

func TestNoteStorage_DeleteNote(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	a, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "a"})
	require.NoError(t, err)
	b, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "b"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteNote(ctx, "alice", a.ID))

	_, err = s.GetNote(ctx, "alice", a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, noteIDs(list))

	// already gone
	assert.NoError(t, s.DeleteNote(ctx, "alice", a.ID))
}

func TestNoteStorage_DeleteFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestStorage(store, cache.NewMemory())

	a, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "a"})
	require.NoError(t, err)

	store.failDelete = errBoom
	err = s.DeleteNote(ctx, "alice", a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetryable)
	assert.ErrorIs(t, err, domain.ErrStore)

	store.failDelete = nil
	require.NoError(t, s.DeleteNote(ctx, "alice", a.ID))
	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNoteStorage_DeleteCacheFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mem := cache.NewMemory()
	s := newTestStorage(store, mem)

	a, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: "a"})
	require.NoError(t, err)

	flaky := &flakyCache{Cache: mem, failSetFor: func(key string) bool { return true }}
	err = newTestStorage(store, flaky).DeleteNote(ctx, "alice", a.ID)
	assert.ErrorIs(t, err, domain.ErrRetryable)
	assert.ErrorIs(t, err, domain.ErrCache)

	// the stale summary was invalidated
	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNoteStorage_LenientDeleteSwallowsFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failDelete = errBoom
	s := NewNoteStorageService(store, cache.NewMemory(), nil, nil, NoteServiceConfig{LenientDelete: true})

	assert.NoError(t, s.DeleteNote(ctx, "alice", "x"))
}

func TestNoteStorage_ListNotes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestStorage(store, cache.NewMemory())

	_, err := s.ListNotes(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	list, err := s.ListNotes(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for i := 0; i < 3; i++ {
		_, err := store.Upsert(ctx, &domain.Note{OwnerID: "alice", Title: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	_, err = store.Upsert(ctx, &domain.Note{OwnerID: "bob"})
	require.NoError(t, err)

	list, err = s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, item := range list {
		assert.Equal(t, "alice", item.OwnerID)
	}
	calls := store.listCalls.Load()

	// second call served from the cache
	_, err = s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, calls, store.listCalls.Load())
}

func TestNoteStorage_ListNotesNeverFails(t *testing.T) {
	store := newFakeStore()
	store.failList = errBoom
	s := newTestStorage(store, cache.NewMemory())

	list, err := s.ListNotes(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNoteStorage_SaveNoteListRejectsForeignEntries(t *testing.T) {
	s := newTestStorage(newFakeStore(), cache.NewMemory()).(*noteStorageService)

	err := s.saveNoteList(context.Background(), "alice", []*domain.NoteSummary{
		{OwnerID: "alice", NoteID: "1"},
		{OwnerID: "bob", NoteID: "2"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.saveNoteList(context.Background(), "alice", []*domain.NoteSummary{
		{OwnerID: "bob", NoteID: "2"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.NoError(t, s.saveNoteList(context.Background(), "alice", nil))
}

func TestNoteStorage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queue := writequeue.New(nil, nil)
	defer queue.Shutdown(context.Background())
	s := NewNoteStorageService(newFakeStore(), cache.NewMemory(), queue, nil, NoteServiceConfig{SerializeSummaryWrites: true})

	_, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoteStorage_ConcurrentSavesKeepEverySummary(t *testing.T) {
	ctx := context.Background()
	queue := writequeue.New(nil, nil)
	defer queue.Shutdown(context.Background())

	store := newFakeStore()
	s := NewNoteStorageService(store, cache.NewMemory(), queue, nil, NoteServiceConfig{SerializeSummaryWrites: true})

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := s.SaveNote(ctx, &domain.Note{OwnerID: "alice", Title: fmt.Sprint(i)})
			if assert.NoError(t, err) {
				ids[i] = stored.ID
			}
		}(i)
	}
	wg.Wait()

	list, err := s.ListNotes(ctx, "alice")
	require.NoError(t, err)
	got := noteIDs(list)
	sort.Strings(got)
	sort.Strings(ids)
	assert.Equal(t, ids, got)
}

type storageOp struct {
	delete bool
	slot   int
	title  string
}

// After any sequence of saves and deletes the cached summary list holds
// exactly the notes the store holds for the owner.
func TestNoteStorage_SummaryMatchesStoreProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genOp := gopter.CombineGens(gen.Bool(), gen.IntRange(0, 4), gen.AlphaString()).Map(func(v []any) storageOp {
		return storageOp{delete: v[0].(bool), slot: v[1].(int), title: v[2].(string)}
	})

	properties.Property("summary list mirrors the store", prop.ForAll(
		func(ops []storageOp) bool {
			ctx := context.Background()
			store := newFakeStore()
			s := newTestStorage(store, cache.NewMemory())
			slots := make([]string, 5)

			for _, op := range ops {
				if op.delete {
					if slots[op.slot] == "" {
						continue
					}
					if err := s.DeleteNote(ctx, "alice", slots[op.slot]); err != nil {
						return false
					}
					slots[op.slot] = ""
					continue
				}
				stored, err := s.SaveNote(ctx, &domain.Note{ID: slots[op.slot], OwnerID: "alice", Title: op.title})
				if err != nil {
					return false
				}
				slots[op.slot] = stored.ID
			}

			list, err := s.ListNotes(ctx, "alice")
			if err != nil {
				return false
			}
			notes, _ := store.ListByOwner(ctx, "alice")
			if len(list) != len(notes) {
				return false
			}
			want := map[string]string{}
			for _, n := range notes {
				want[n.ID] = n.Title
			}
			for _, item := range list {
				if title, ok := want[item.NoteID]; !ok || title != item.Title {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp),
	))

	properties.TestingRun(t)
}

// gatedStore blocks Upsert and GetByID until released. A released Upsert always
// lands, like a statement the database already received; GetByID honours ctx.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{fakeStore: newFakeStore(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) wait(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return ctx.Err()
}

func (g *gatedStore) Upsert(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	_ = g.wait(ctx)
	return g.fakeStore.Upsert(ctx, note)
}

func (g *gatedStore) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	if err := g.wait(ctx); err != nil {
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return g.fakeStore.GetByID(ctx, id)
}

func TestNoteStorage_SaveOutlivingCallerDeadlineReportsTheWrite(t *testing.T) {
	store := newGatedStore()
	c := cache.NewMemory()
	queue := writequeue.New(nil, nil)
	defer queue.Shutdown(context.Background())
	svc := NewNoteStorageService(store, c, queue, nil, NoteServiceConfig{
		SlidingExpiration:      time.Minute,
		SerializeSummaryWrites: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	go func() {
		<-store.entered
		<-ctx.Done()
		close(store.release)
	}()

	note := &domain.Note{OwnerID: "alice", Title: "late"}
	out, err := svc.SaveNote(ctx, note)
	require.NoError(t, err)
	assert.Error(t, ctx.Err())

	store.mu.Lock()
	count := len(store.notes)
	store.mu.Unlock()
	require.Equal(t, 1, count)
	assert.Equal(t, out.ID, note.ID)

	cached, ok, err := c.GetString(context.Background(), domain.NoteCacheKey("alice", out.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, cached, "late")

	list, err := svc.ListNotes(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{out.ID}, noteIDs(list))
}

func TestNoteStorage_QueuedSaveAbandonedOnDeadlineNeverWrites(t *testing.T) {
	store := newGatedStore()
	queue := writequeue.New(nil, nil)
	defer queue.Shutdown(context.Background())
	svc := NewNoteStorageService(store, cache.NewMemory(), queue, nil, NoteServiceConfig{
		SlidingExpiration:      time.Minute,
		SerializeSummaryWrites: true,
	})

	first := make(chan error, 1)
	go func() {
		_, err := svc.SaveNote(context.Background(), &domain.Note{OwnerID: "alice", Title: "first"})
		first <- err
	}()
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	second := &domain.Note{OwnerID: "alice", Title: "second"}
	_, err := svc.SaveNote(ctx, second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, <-first)

	// the abandoned save never reaches the store
	require.NoError(t, queue.Execute(context.Background(), "alice", func(context.Context) error { return nil }))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.notes, 1)
	assert.Empty(t, second.ID)
}

func TestNoteStorage_CancelledReaderDoesNotFailConcurrentReader(t *testing.T) {
	store := newGatedStore()
	store.fakeStore.notes["n1"] = &domain.Note{ID: "n1", OwnerID: "alice", Title: "t"}
	store.fakeStore.order = []string{"n1"}
	svc := newTestStorage(store, cache.NewMemory())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetNote(leaderCtx, "alice", "n1")
		leaderErr <- err
	}()
	<-store.entered

	type result struct {
		note *domain.Note
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		n, err := svc.GetNote(context.Background(), "alice", "n1")
		follower <- result{n, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(store.release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, "t", res.note.Title)
}

func TestNoteStorage_BlankIdentifiersAreRejected(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := cache.NewMemory()
	svc := newTestStorage(store, c)

	_, err := svc.GetNote(ctx, "  ", "n1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.GetNote(ctx, "alice", "\t")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.SaveNote(ctx, &domain.Note{OwnerID: " ", Title: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.SaveNote(ctx, &domain.Note{ID: "  ", OwnerID: "alice", Title: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, svc.DeleteNote(ctx, "alice", " "), domain.ErrValidation)
	_, err = svc.ListNotes(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, store.notes)
	_, ok, err := c.GetString(ctx, domain.SummaryCacheKey("   "))
	require.NoError(t, err)
	assert.False(t, ok)
}
