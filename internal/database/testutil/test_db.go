package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mealvault/mealvault/internal/database"
)

// MustOpenTestStore opens a file-backed store under t.TempDir so tests that
// close and reopen the handle (backups, restores) see a durable image. The
// store is closed via t.Cleanup.
func MustOpenTestStore(t *testing.T) *database.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mealvault.db")
	store, err := database.OpenStore(database.Config{Path: path})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// MustOpenMemoryStore opens an in-memory store for tests that never touch the
// file handle.
func MustOpenMemoryStore(t *testing.T) *database.Store {
	t.Helper()

	store, err := database.OpenStore(database.Config{Path: ":memory:"})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
