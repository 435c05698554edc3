package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Database{
		"memdb": func(t *testing.T) Database {
			return NewMemDB()
		},
		"leveldb": func(t *testing.T) Database {
			db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
			require.NoError(t, err)
			return db
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			db := open(t)
			defer db.Close()

			key := []byte("token/1")
			_, err := db.Get(key)
			require.True(t, errors.Is(err, ErrNotFound))

			ok, err := db.Has(key)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, db.Put(key, []byte("alpha")))
			value, err := db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("alpha"), value)

			ok, err = db.Has(key)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Put(key, []byte("beta")))
			value, err = db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("beta"), value)

			require.NoError(t, db.Delete(key))
			_, err = db.Get(key)
			require.True(t, errors.Is(err, ErrNotFound))

			// Deleting an absent key is a no-op.
			require.NoError(t, db.Delete(key))
		})
	}
}

func TestLevelDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")

	db, err := NewLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("holder"), []byte("points")))
	db.Close()

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get([]byte("holder"))
	require.NoError(t, err)
	require.Equal(t, []byte("points"), value)
}
