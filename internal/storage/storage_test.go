package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behaviour every Store must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "greeting", "hello"))
		value, err := store.Get(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "hello", value)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "counter", "1"))
		require.NoError(t, store.Set(ctx, "counter", "2"))
		value, err := store.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, "2", value)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", "soon"))
		require.NoError(t, store.Remove(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remove missing key is not an error", func(t *testing.T) {
		assert.NoError(t, store.Remove(ctx, "never-set"))
	})

	t.Run("values are kept verbatim", func(t *testing.T) {
		raw := `[{"local_id":"local_1_a","total_price":"42.5"}]`
		require.NoError(t, store.Set(ctx, "pending_transactions", raw))
		value, err := store.Get(ctx, "pending_transactions")
		require.NoError(t, err)
		assert.Equal(t, raw, value)
	})
}

func TestMemory_Contract(t *testing.T) {
	testStoreContract(t, NewMemory())
}

func TestSQLite_Contract(t *testing.T) {
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	testStoreContract(t, store)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	store, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "last_sync_timestamp", "1700000000000"))
	require.NoError(t, store.Close())

	// migrations run again on an up to date schema
	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "last_sync_timestamp")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", value)
}

func TestSQLite_ClosedDatabase(t *testing.T) {
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Get(context.Background(), "key")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedis(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedis_Contract(t *testing.T) {
	store, _ := setupTestRedis(t)
	testStoreContract(t, store)
}

func TestRedis_KeysAreNamespaced(t *testing.T) {
	store, mr := setupTestRedis(t)

	require.NoError(t, store.Set(context.Background(), "pending_transactions", "[]"))

	value, err := mr.Get("pos:pending_transactions")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
	assert.Zero(t, mr.TTL("pos:pending_transactions"), "keys never expire")
}

func TestRedis_ServerDown(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "anything")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	store, err = Open(ctx, Options{Driver: DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, store)
	store.Close()

	mr := miniredis.RunT(t)
	store, err = Open(ctx, Options{Driver: DriverRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, store)
	store.Close()

	_, err = Open(ctx, Options{Driver: "etcd"})
	assert.Error(t, err)
}
