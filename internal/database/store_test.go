package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/models"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(Config{Path: filepath.Join(t.TempDir(), "meals.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func sampleMeal(name string) *models.Meal {
	return &models.Meal{
		Name: name,
		Tags: []string{"lunch"},
		Items: []models.MealItem{
			{Position: 0, Name: "Rice", Quantity: 150, Unit: "g"},
			{Position: 1, Name: "Beans", Quantity: 100, Unit: "g"},
		},
	}
}

func TestInsertAssignsIDAndPersistsItems(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, sampleMeal("Rice and beans"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.QueryByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Rice and beans", got.Name)
	require.Len(t, got.Items, 2)
	require.Equal(t, "Rice", got.Items[0].Name)
	require.Equal(t, "Beans", got.Items[1].Name)
}

func TestQueryByIDMissingReturnsNil(t *testing.T) {
	store := openTempStore(t)

	got, err := store.QueryByID(context.Background(), "no-such-id")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateReplacesItems(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	meal := sampleMeal("Original")
	id, err := store.Insert(ctx, meal)
	require.NoError(t, err)

	meal.Name = "Updated"
	meal.Items = []models.MealItem{
		{Position: 0, Name: "Tofu", Quantity: 200, Unit: "g"},
	}

	found, err := store.Update(ctx, meal)
	require.NoError(t, err)
	require.True(t, found)

	got, err := store.QueryByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Updated", got.Name)
	require.Len(t, got.Items, 1)
	require.Equal(t, "Tofu", got.Items[0].Name)
}

func TestUpdateUnknownIDReportsNotFound(t *testing.T) {
	store := openTempStore(t)

	meal := sampleMeal("Ghost")
	meal.ID = "missing-id"

	found, err := store.Update(context.Background(), meal)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteByID(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, sampleMeal("To delete"))
	require.NoError(t, err)

	deleted, err := store.DeleteByID(ctx, id)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteByID(ctx, id)
	require.NoError(t, err)
	require.False(t, deleted)

	got, err := store.QueryByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	boom := errors.New("abort")
	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := InsertTx(tx, sampleMeal("Phantom")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	meals, err := store.QueryAll(ctx, QueryFilter{})
	require.NoError(t, err)
	require.Empty(t, meals)
}

func TestQueryAllPagination(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.Insert(ctx, sampleMeal("Meal"))
		require.NoError(t, err)
	}

	first, err := store.QueryAll(ctx, QueryFilter{Limit: 5, Offset: 0})
	require.NoError(t, err)
	second, err := store.QueryAll(ctx, QueryFilter{Limit: 5, Offset: 5})
	require.NoError(t, err)

	require.Len(t, first, 5)
	require.Len(t, second, 5)

	seen := map[string]struct{}{}
	for _, m := range append(first, second...) {
		_, dup := seen[m.ID]
		require.False(t, dup, "pages must be disjoint")
		seen[m.ID] = struct{}{}
	}
}

func TestCloseThenReopenPreservesData(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, sampleMeal("Durable"))
	require.NoError(t, err)

	require.NoError(t, store.Close())

	_, err = store.QueryByID(ctx, id)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, store.Reopen())

	got, err := store.QueryByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Durable", got.Name)
}
