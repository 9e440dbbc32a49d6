package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleState = `{"skyblockPos":{"spacing":1000,"layer":1,"x":-1,"y":80,"z":-1},"skyblocks":{}}`

// exerciseStateStore проверяет общий контракт StateStore
func exerciseStateStore(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Load(ctx, "overworld")
	require.NoError(t, err)
	assert.False(t, found, "Состояние не должно существовать до первого сохранения")

	require.NoError(t, store.Save(ctx, "overworld", []byte(sampleState)))
	data, found, err := store.Load(ctx, "overworld")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, sampleState, string(data))

	// Повторное сохранение заменяет состояние
	updated := `{"skyblockPos":{"spacing":1000,"layer":1,"x":0,"y":80,"z":-1},"skyblocks":{}}`
	require.NoError(t, store.Save(ctx, "overworld", []byte(updated)))
	data, _, err = store.Load(ctx, "overworld")
	require.NoError(t, err)
	assert.JSONEq(t, updated, string(data))

	// Миры независимы
	_, found, err = store.Load(ctx, "nether")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, store.Save(ctx, "", []byte(sampleState)), "Пустой идентификатор мира недопустим")
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()
	exerciseStateStore(t, store)
	assert.Equal(t, 1, store.Worlds())

	require.NoError(t, store.Close())
	_, _, err := store.Load(context.Background(), "overworld")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStateStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	data := []byte(sampleState)
	require.NoError(t, store.Save(ctx, "overworld", data))
	data[0] = 'X'

	loaded, _, err := store.Load(ctx, "overworld")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), loaded[0])
}

func TestBadgerStateStore(t *testing.T) {
	store, err := OpenBadgerStateStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	exerciseStateStore(t, store)
}

func TestBadgerStateStore_SharedDB(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStateStore(db)
	exerciseStateStore(t, store)

	// Общая база не закрывается вместе с хранилищем
	require.NoError(t, store.Close())
	assert.False(t, db.IsClosed())
	_, _, err := store.Load(context.Background(), "overworld")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBadgerStateStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenBadgerStateStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "overworld", []byte(sampleState)))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStateStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	data, found, err := reopened.Load(ctx, "overworld")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, sampleState, string(data))
}

func TestSQLiteStateStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLStateStore(ctx, DialectSQLite, filepath.Join(t.TempDir(), "plots.db"))
	require.NoError(t, err)
	defer store.Close()
	exerciseStateStore(t, store)
}

func TestSQLStateStore_UnknownDialect(t *testing.T) {
	_, err := NewSQLStateStore(context.Background(), "postgres", "")
	assert.Error(t, err)
}

func TestCompression(t *testing.T) {
	packed, err := compress([]byte(sampleState))
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, packed[:4])

	unpacked, err := decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, sampleState, string(unpacked))

	// Несжатый JSON читается как есть
	plain, err := decompress([]byte(sampleState))
	require.NoError(t, err)
	assert.Equal(t, sampleState, string(plain))
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Config{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStateStore{}, store)

	dir := t.TempDir()
	store, err = Open(ctx, Config{Backend: BackendSQLite, DataDir: dir}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStateStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open(ctx, Config{Backend: BackendBadger}, setupTestDB(t))
	require.NoError(t, err)
	assert.IsType(t, &BadgerStateStore{}, store)

	_, err = Open(ctx, Config{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
