package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatflow/pkg/config"
	"chatflow/pkg/kv"
	"chatflow/pkg/model"

	"github.com/stretchr/testify/require"
)

const boundary = "--- history ---"

func newTestStore(t *testing.T, storage kv.Store, maxEntries int) *Store {
	t.Helper()
	return New(storage, config.HistoryConfig{
		MaxEntries:   maxEntries,
		StorageKey:   "history",
		BoundaryText: boundary,
	}, nil)
}

func texts(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Content)
	}
	return out
}

func textMessages(contents ...string) []model.Message {
	messages := make([]model.Message, 0, len(contents))
	for _, content := range contents {
		messages = append(messages, model.NewMessage(content, model.SenderBot))
	}
	return messages
}

func TestSaveKeepsMostRecentEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, kv.NewMemoryStore(), 3)

	messages := textMessages("a", "b")
	store.Save(ctx, messages)
	require.Equal(t, []string{"a", "b"}, texts(store.Load(ctx)))

	messages = append(messages, textMessages("", "c", "  ", "d", "e")...)
	for i := 0; i < 3; i++ {
		store.Save(ctx, messages)
		require.Equal(t, []string{"c", "d", "e"}, texts(store.Load(ctx)))
	}
}

func TestSaveNeverExceedsMaxEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, kv.NewMemoryStore(), 3)

	var messages []model.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, model.NewMessage(fmt.Sprintf("m%d", i), model.SenderUser))
		store.Save(ctx, messages)

		entries := store.Load(ctx)
		require.LessOrEqual(t, len(entries), 3)
		require.Equal(t, fmt.Sprintf("m%d", i), entries[len(entries)-1].Content)
	}

	require.Equal(t, []string{"m7", "m8", "m9"}, texts(store.Load(ctx)))
}

func TestSaveStopsAtBoundaryAndCombinesWithLoadedTail(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemoryStore()

	previous := newTestStore(t, storage, 4)
	previous.Save(ctx, textMessages("old1", "old2", "old3"))

	store := newTestStore(t, storage, 4)
	store.Reload(ctx)

	view := store.ViewMessages()
	require.Len(t, view, 4)
	require.True(t, store.IsBoundary(view[3]))

	messages := append(view, textMessages("new1", "new2")...)
	store.Save(ctx, messages)
	require.Equal(t, []string{"old2", "old3", "new1", "new2"}, texts(store.Load(ctx)))

	store.Save(ctx, messages)
	require.Equal(t, []string{"old2", "old3", "new1", "new2"}, texts(store.Load(ctx)))
}

func TestSaveSerializesNodeContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, kv.NewMemoryStore(), 5)

	card := map[string]string{"title": "Card"}
	store.Save(ctx, []model.Message{model.NewMessage(card, model.SenderBot)})

	entries := store.Load(ctx)
	require.Len(t, entries, 1)
	require.Equal(t, model.KindNode, entries[0].Kind)
	require.JSONEq(t, `{"title":"Card"}`, entries[0].Content)

	restored := entries[0].Message()
	require.Equal(t, model.KindNode, restored.Kind)
	require.Equal(t, Node(`{"title":"Card"}`), restored.Content)
}

func TestDisabledHistoryIsNoop(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemoryStore()
	store := New(storage, config.HistoryConfig{Disabled: true, StorageKey: "history"}, nil)

	store.Save(ctx, textMessages("a"))

	_, found, err := storage.Get(ctx, "history")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNilStorageIsNoop(t *testing.T) {
	store := New(nil, config.HistoryConfig{StorageKey: "history"}, nil)

	store.Save(context.Background(), textMessages("a"))
	require.Nil(t, store.Load(context.Background()))
	require.NoError(t, store.Clear(context.Background()))
}

func TestLoadTreatsCorruptContentAsEmpty(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemoryStore()
	require.NoError(t, storage.Set(ctx, "history", "{not json"))

	store := newTestStore(t, storage, 3)
	require.Empty(t, store.Load(ctx))
	require.Empty(t, store.Reload(ctx))
	require.Nil(t, store.ViewMessages())

	store.Save(ctx, textMessages("fresh"))
	require.Equal(t, []string{"fresh"}, texts(store.Load(ctx)))
}

type failingStore struct {
	kv.Store
}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("unreachable")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("unreachable")
}

func TestStorageFailuresDoNotPropagate(t *testing.T) {
	store := newTestStore(t, failingStore{}, 3)

	store.Save(context.Background(), textMessages("a"))
	require.Nil(t, store.Load(context.Background()))
}

// gatedStore holds the first Set until release is closed.
type gatedStore struct {
	kv.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key string, value string) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Store.Set(ctx, key, value)
}

func TestConcurrentSavesApplyInCallOrder(t *testing.T) {
	ctx := context.Background()
	gated := &gatedStore{
		Store:   kv.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := newTestStore(t, gated, 5)
	messages := textMessages("one", "two")

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		store.Save(ctx, messages[:1])
	}()
	<-gated.entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		store.Save(ctx, messages)
	}()

	require.Never(t, func() bool {
		select {
		case <-secondDone:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "later save must wait for the one in flight")

	close(gated.release)
	<-firstDone
	<-secondDone

	require.Equal(t, []string{"one", "two"}, texts(store.Load(ctx)))
}

func TestClearRemovesHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, kv.NewMemoryStore(), 3)
	store.Save(ctx, textMessages("a"))
	store.Reload(ctx)

	require.NoError(t, store.Clear(ctx))
	require.Empty(t, store.Load(ctx))
	require.Empty(t, store.Entries())
}
