package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBackendContract(t *testing.T, kv KeyValueStore) {
	t.Helper()

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok, "absent key reports ok=false without error")

	require.NoError(t, kv.Set("wallets", `[{"address":"x"}]`))
	v, ok, err := kv.Get("wallets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"address":"x"}]`, v)

	require.NoError(t, kv.Set("wallets", "[]"), "set overwrites")
	v, _, err = kv.Get("wallets")
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	require.NoError(t, kv.Delete("wallets"))
	_, ok, err = kv.Get("wallets")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Delete("wallets"), "deleting an absent key is not an error")
}

func TestFileStoreContract(t *testing.T) {
	kv, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()
	runBackendContract(t, kv)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	kv, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Set("btcPrice", "45000"))
	require.NoError(t, kv.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get("btcPrice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "45000", v)
}

func TestSQLiteStoreContract(t *testing.T) {
	kv, err := NewSQLiteStore(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	defer kv.Close()
	runBackendContract(t, kv)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")

	kv, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set("lastUpdated", "2024-03-01T12:00:00Z"))
	require.NoError(t, kv.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get("lastUpdated")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T12:00:00Z", v)
}
