package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mealvault/mealvault/internal/database"
	"github.com/mealvault/mealvault/internal/database/testutil"
	"github.com/mealvault/mealvault/internal/models"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
)

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *database.Store, string) {
	t.Helper()

	store := testutil.MustOpenTestStore(t)
	dir := filepath.Join(t.TempDir(), "backups")

	coord, err := NewCoordinator(store, dir, opts...)
	require.NoError(t, err)
	return coord, store, dir
}

func insertMeal(t *testing.T, store *database.Store, name string) string {
	t.Helper()

	id, err := store.Insert(context.Background(), &models.Meal{
		Name:  name,
		Items: []models.MealItem{{Name: "Rice", Quantity: 100, Unit: "g", Position: 0}},
	})
	require.NoError(t, err)
	return id
}

func TestNewCoordinatorRejectsMemoryStore(t *testing.T) {
	store := testutil.MustOpenMemoryStore(t)

	_, err := NewCoordinator(store, t.TempDir())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestCreateAndRestoreRoundtrip(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	keptID := insertMeal(t, store, "Kept")

	meta, err := coord.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, meta.ID)
	require.Len(t, meta.Checksum, 64)
	require.Positive(t, meta.Size)
	require.Equal(t, store.SchemaVersion(), meta.Version)

	// Mutate after the snapshot, then roll back to it.
	insertMeal(t, store, "Discarded")

	require.NoError(t, coord.Restore(ctx, meta.ID))

	meals, err := store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, meals, 1)
	require.Equal(t, keptID, meals[0].ID)
	require.Equal(t, "Kept", meals[0].Name)
}

func TestRestoreTamperedArtifactLeavesStoreUntouched(t *testing.T) {
	coord, store, dir := newTestCoordinator(t)
	ctx := context.Background()

	insertMeal(t, store, "Original")

	meta, err := coord.Create(ctx)
	require.NoError(t, err)

	artifact := filepath.Join(dir, meta.ID+".db")
	require.NoError(t, os.WriteFile(artifact, []byte("garbage"), 0o600))

	insertMeal(t, store, "Live")

	err = coord.Restore(ctx, meta.ID)
	require.ErrorIs(t, err, apperrors.ErrIntegrity)

	// An integrity failure must not have replaced the live image.
	meals, err := store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, meals, 2)
}

func TestCreateFailureLeavesStoreOpen(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Create(ctx)
	require.ErrorIs(t, err, apperrors.ErrCancelled)

	// The store must be usable again after any failed backup.
	_, err = store.QueryAll(context.Background(), database.QueryFilter{})
	require.NoError(t, err)
}

func TestCreateFailureRemovesPartialArtifact(t *testing.T) {
	coord, _, dir := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Create(ctx)
	require.Error(t, err)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestListOrdersNewestFirstAndSkipsOrphans(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	clock := func() time.Time { return now }

	coord, _, dir := newTestCoordinator(t, WithNow(clock))
	ctx := context.Background()

	older, err := coord.Create(ctx)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	newer, err := coord.Create(ctx)
	require.NoError(t, err)

	// An artifact with no metadata record is skipped, not an error.
	orphan := filepath.Join(dir, "11111111-2222-3333-4444-555555555555.db")
	require.NoError(t, os.WriteFile(orphan, []byte("stray"), 0o600))

	metas, err := coord.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, newer.ID, metas[0].ID)
	require.Equal(t, older.ID, metas[1].ID)
}

func TestListEmptyDirectory(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	metas, err := coord.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestDeleteRemovesArtifactAndMetadata(t *testing.T) {
	coord, _, dir := newTestCoordinator(t)
	ctx := context.Background()

	meta, err := coord.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, coord.Delete(ctx, meta.ID))

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)

	err = coord.Delete(ctx, meta.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRestoreUnknownIDIsNotFound(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	err := coord.Restore(context.Background(), "66666666-7777-8888-9999-aaaaaaaaaaaa")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRestoreRejectsPathTraversal(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	err := coord.Restore(context.Background(), "../outside")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExportImportRoundtrip(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	keptID := insertMeal(t, store, "Exported")

	var image bytes.Buffer
	require.NoError(t, coord.ExportTo(ctx, &image))
	require.Positive(t, image.Len())

	insertMeal(t, store, "Added after export")

	require.NoError(t, coord.ImportFrom(ctx, bytes.NewReader(image.Bytes())))

	meals, err := store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, meals, 1)
	require.Equal(t, keptID, meals[0].ID)
}

func TestStoreUsableAfterEveryOperation(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	insertMeal(t, store, "One")

	meta, err := coord.Create(ctx)
	require.NoError(t, err)
	insertMeal(t, store, "Two")

	require.NoError(t, coord.Restore(ctx, meta.ID))
	insertMeal(t, store, "Three")

	meals, err := store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, meals, 2)
}
