package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/bucketsync/internal/db"
	"github.com/openmined/bucketsync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.NewSqliteDB()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := NewSQLStore(database)
	require.NoError(t, store.EnsureTable(context.Background(), DefaultTable))
	return store
}

func TestSQLStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &Item{ID: "id-1", FriendlyName: "Photos", Organization: "acme", CreatedAt: created}
	require.NoError(t, store.PutItem(ctx, DefaultTable, item))

	got, err := store.GetItem(ctx, DefaultTable, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Photos", got.FriendlyName)
	assert.Equal(t, "acme", got.Organization)
	assert.True(t, created.Equal(got.CreatedAt))

	// upsert replaces the record
	item.FriendlyName = "Pictures"
	require.NoError(t, store.PutItem(ctx, DefaultTable, item))
	got, err = store.GetItem(ctx, DefaultTable, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Pictures", got.FriendlyName)
}

func TestSQLStore_GetMissing(t *testing.T) {
	_, err := newSQLStore(t).GetItem(context.Background(), DefaultTable, "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSQLStore_ScanAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutItem(ctx, DefaultTable, &Item{
			ID:           id,
			FriendlyName: "repo-" + id,
			CreatedAt:    time.UnixMilli(int64(1000 * (i + 1))),
		}))
	}

	items, err := store.ScanAll(ctx, DefaultTable)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)

	require.NoError(t, store.DeleteItem(ctx, DefaultTable, "b"))
	items, err = store.ScanAll(ctx, DefaultTable)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSQLStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	assert.Error(t, store.PutItem(ctx, DefaultTable, &Item{}))
	assert.Error(t, store.PutItem(ctx, "bad name; drop", &Item{ID: "x"}))
	_, err := store.ScanAll(ctx, "")
	assert.Error(t, err)
}
