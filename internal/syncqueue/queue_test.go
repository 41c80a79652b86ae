package syncqueue

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/bissquit/inspection-sync/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysFor(t *testing.T) {
	assert.Equal(t, Keys{Queue: "@sync_queue", Attempts: "@sync_attempts", Processing: "@sync_processing"}, KeysFor(""))
	assert.Equal(t, "dev_queue", KeysFor("dev").Queue)
}

func TestQueue_Append(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := kv.NewMemoryStore()
	q := NewQueue(store, KeysFor(""), clock.Now)

	insp := sampleInspection("a")
	item, err := q.Append(ctx, insp)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^sync_\d+_[0-9a-f]{9}$`), item.ID)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, int64(0), item.LastAttempt)
	assert.Equal(t, clock.Now().UnixMilli(), item.CreatedAt)

	insp.Name = "mutated"
	items := mustList(t, q)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Data.Name, "queued copy is independent of the caller's record")
}

func TestQueue_AppendNil(t *testing.T) {
	q := NewQueue(kv.NewMemoryStore(), KeysFor(""), nil)
	_, err := q.Append(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoInspection)
}

func TestQueue_PersistedFormat(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := kv.NewMemoryStore()
	q := NewQueue(store, KeysFor(""), clock.Now)

	_, err := q.Append(ctx, sampleInspection("a"))
	require.NoError(t, err)

	raw, found, err := store.Get(ctx, "@sync_queue")
	require.NoError(t, err)
	require.True(t, found)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	require.Len(t, decoded, 1)
	for _, key := range []string{"id", "data", "attempts", "lastAttempt", "createdAt"} {
		assert.Contains(t, decoded[0], key)
	}
	assert.Equal(t, "a", decoded[0]["data"].(map[string]any)["nome"])
}

func TestQueue_ListOrderAndMissing(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore(), KeysFor(""), nil)

	assert.Empty(t, mustList(t, q))

	for _, name := range []string{"a", "b", "c"} {
		_, err := q.Append(ctx, sampleInspection(name))
		require.NoError(t, err)
	}

	items := mustList(t, q)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Data.Name)
	assert.Equal(t, "b", items[1].Data.Name)
	assert.Equal(t, "c", items[2].Data.Name)
}

func TestQueue_CorruptReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "@sync_queue", "{not json"))
	q := NewQueue(store, KeysFor(""), nil)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = q.Append(ctx, sampleInspection("a"))
	require.NoError(t, err)
	assert.Len(t, mustList(t, q), 1)
}

func TestQueue_StoreErrorIsReturned(t *testing.T) {
	q := NewQueue(brokenStore{err: errStoreDown}, KeysFor(""), nil)

	_, err := q.List(context.Background())
	assert.ErrorIs(t, err, errStoreDown)

	_, err = q.Append(context.Background(), sampleInspection("a"))
	assert.ErrorIs(t, err, errStoreDown)
}

func TestQueue_RemoveAndReplace(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore(), KeysFor(""), nil)

	a, err := q.Append(ctx, sampleInspection("a"))
	require.NoError(t, err)
	b, err := q.Append(ctx, sampleInspection("b"))
	require.NoError(t, err)

	a.Attempts = 2
	a.LastAttempt = 12345
	require.NoError(t, q.Replace(ctx, a))

	items := mustList(t, q)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID, "replace keeps position")
	assert.Equal(t, 2, items[0].Attempts)
	assert.Equal(t, int64(12345), items[0].LastAttempt)

	require.NoError(t, q.Remove(ctx, a.ID))
	require.NoError(t, q.Remove(ctx, "missing"))

	items = mustList(t, q)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	a.Attempts = 3
	require.NoError(t, q.Replace(ctx, a))
	assert.Len(t, mustList(t, q), 1, "replacing a removed item does not resurrect it")
}

func TestQueue_ClearRemovesAllCollections(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	keys := KeysFor("")
	q := NewQueue(store, keys, nil)

	_, err := q.Append(ctx, sampleInspection("a"))
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, keys.Attempts, "[]"))
	require.NoError(t, store.Set(ctx, keys.Processing, "[]"))
	require.NoError(t, store.Set(ctx, "unrelated", "x"))

	require.NoError(t, q.Clear(ctx))

	remaining, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unrelated"}, remaining)
}
