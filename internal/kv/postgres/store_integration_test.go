//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/bissquit/inspection-sync/internal/kv"
	"github.com/bissquit/inspection-sync/internal/kv/postgres"
	"github.com/bissquit/inspection-sync/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testDB, err = pgContainer.MigratedPool(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		log.Fatalf("prepare database: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE kv_entries`)
	require.NoError(t, err)
	return postgres.NewStore(testDB)
}

func TestStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, found, err := s.Get(ctx, "@sync_queue")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "@sync_queue", `[]`))
	require.NoError(t, s.Set(ctx, "@sync_queue", `[{"id":"a"}]`))

	v, found, err := s.Get(ctx, "@sync_queue")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"a"}]`, v)

	require.NoError(t, s.Remove(ctx, "@sync_queue"))
	_, found, err = s.Get(ctx, "@sync_queue")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_RemoveManyAndListKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, k := range []string{"@sync_queue", "@sync_attempts", "@sync_processing", "other"} {
		require.NoError(t, s.Set(ctx, k, "x"))
	}

	require.NoError(t, s.RemoveMany(ctx, []string{"@sync_queue", "@sync_attempts", "@sync_processing"}))
	require.NoError(t, s.RemoveMany(ctx, nil))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, keys)
}

func TestStore_UpdateSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "counter", func(current string, found bool) (string, bool, error) {
				n := 0
				if found {
					n, _ = strconv.Atoi(current)
				}
				return strconv.Itoa(n + 1), true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "20", v)
}

func TestStore_ImplementsInterfaces(t *testing.T) {
	var s kv.Store = newStore(t)
	_, ok := s.(kv.Updater)
	assert.True(t, ok)
	p, ok := s.(kv.Pinger)
	require.True(t, ok)
	assert.NoError(t, p.Ping(context.Background()))
}
