package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)

	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	value, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)

	require.NoError(t, db.Delete([]byte("k")))
	has, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, db.WriteBatch(
		Entry{Key: []byte("a"), Value: []byte("1")},
		Entry{Key: []byte("b"), Value: []byte("2")},
	))
	for key, want := range map[string]string{"a": "1", "b": "2"} {
		value, err := db.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, want, string(value))
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exercise(t, db)

	buf := []byte("abc")
	require.NoError(t, db.Put([]byte("copy"), buf))
	buf[0] = 'x'
	value, err := db.Get([]byte("copy"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), value)
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	exercise(t, db)
	require.NoError(t, db.Put([]byte("persist"), []byte("yes")))
	db.Close()

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), value)
}
