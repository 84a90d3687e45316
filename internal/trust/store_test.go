// ABOUTME: Tests for the SQLite and in-memory trust stores.
// ABOUTME: Validates consent persistence across reopen and overwrite semantics.

package trust

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_TrustLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	trusted, err := store.IsTrusted(ctx, 101)
	require.NoError(t, err)
	assert.False(t, trusted)

	require.NoError(t, store.MarkTrusted(ctx, 101))

	trusted, err = store.IsTrusted(ctx, 101)
	require.NoError(t, err)
	assert.True(t, trusted)

	// Other bots are unaffected.
	trusted, err = store.IsTrusted(ctx, 202)
	require.NoError(t, err)
	assert.False(t, trusted)
}

func TestSQLiteStore_MarkTrustedIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkTrusted(ctx, 7))
	require.NoError(t, store.MarkTrusted(ctx, 7))

	trusted, err := store.IsTrusted(ctx, 7)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.MarkTrusted(ctx, 101))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	trusted, err := reopened.IsTrusted(ctx, 101)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestSQLiteStore_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "trust.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	trusted, err := store.IsTrusted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, trusted)

	require.NoError(t, store.MarkTrusted(ctx, 1))

	trusted, err = store.IsTrusted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, trusted)
}
