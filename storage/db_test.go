package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	value := []byte("payload")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.Has([]byte("other"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestSnapshotStore(t *testing.T) {
	store := NewSnapshotStore(NewMemDB())

	_, err := store.GetSnapshot("m-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, store.PutSnapshot(" ", []byte{1}))

	require.NoError(t, store.PutSnapshot("m-1", []byte{1, 2, 3}))
	require.ErrorIs(t, store.PutSnapshot("m-1", []byte{4}), ErrSnapshotExists)

	got, err := store.GetSnapshot("m-1")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	db, err := NewBoltDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestOpenSelectsBackend(t *testing.T) {
	mem, err := Open(BackendBolt, " ")
	require.NoError(t, err)
	require.IsType(t, &MemDB{}, mem)

	for _, backend := range []string{"", BackendLevelDB, BackendBolt} {
		dir := filepath.Join(t.TempDir(), "store")
		db, err := Open(backend, dir)
		require.NoError(t, err, backend)
		store := NewSnapshotStore(db)
		require.NoError(t, store.PutSnapshot("m-1", []byte{7}))
		require.NoError(t, db.Close())

		db, err = Open(backend, dir)
		require.NoError(t, err, backend)
		got, err := NewSnapshotStore(db).GetSnapshot("m-1")
		require.NoError(t, err)
		require.Equal(t, []byte{7}, got)
		require.NoError(t, db.Close())
	}

	_, err = Open("sqlite", t.TempDir())
	require.ErrorContains(t, err, "unknown backend")
}
