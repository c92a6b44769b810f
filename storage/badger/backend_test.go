package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/candirank/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(*badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackendDeletePrefix(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	err = backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		for _, k := range []string{"a:1", "a:2", "ab:1", "b:1"} {
			if err := tx.Set([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, backend.DeletePrefix(ctx, []byte("a:")))
	require.NoError(t, backend.DeletePrefix(ctx, []byte("missing:")))

	var left []string
	err = backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, nil, func(key, _ []byte) error {
			left = append(left, string(key))
			return nil
		})
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab:1", "b:1"}, left)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []byte("coll:pool"), makeCollectionKey("pool"))

	k0 := makeEntryKey("pool", 0)
	k1 := makeEntryKey("pool", 1)
	k256 := makeEntryKey("pool", 256)
	prefix := makeEntryPrefix("pool")

	assert.Len(t, k0, len(prefix)+8)
	assert.Equal(t, prefix, k0[:len(prefix)])
	assert.Less(t, string(k0), string(k1))
	assert.Less(t, string(k1), string(k256))
	assert.NotEqual(t, makeEntryPrefix("pool"), makeEntryPrefix("pool2"))
	assert.NotEqual(t, makeEntryKey("pool", 3)[:5], makeResultKey("pool", 3)[:5])
}
