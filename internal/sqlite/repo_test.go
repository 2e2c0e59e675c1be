package sqlite

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/evanfuller/constellation/internal/constellation"
	"github.com/evanfuller/constellation/internal/migrations"
)

// testRepo bundles both stores over one in-memory database.
type testRepo struct {
	items ItemRepo
	colls CollectionRepo
	db    *sqlx.DB
}

func newTestRepo(t *testing.T) testRepo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pool connection would get its own empty in-memory database.
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = dbx.Close() })

	require.NoError(t, migrations.Run(dbx))

	return testRepo{
		items: NewItemRepo(dbx),
		colls: NewCollectionRepo(dbx),
		db:    dbx,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func seedItem(t *testing.T, r testRepo, ownerID, itemID string, mutate ...func(*constellation.AddItemArgs)) constellation.SavedItem {
	t.Helper()

	args := constellation.AddItemArgs{
		ItemID:   itemID,
		ItemType: constellation.ItemTypeAPOD,
		Title:    "title of " + itemID,
		URL:      "https://catalog.example/" + itemID,
	}
	for _, m := range mutate {
		m(&args)
	}

	item, err := r.items.Add(context.Background(), ownerID, args)
	require.NoError(t, err)

	return item
}

func seedCollection(t *testing.T, r testRepo, ownerID, name string, mutate ...func(*constellation.CreateCollectionArgs)) constellation.Collection {
	t.Helper()

	args := constellation.CreateCollectionArgs{Name: name}
	for _, m := range mutate {
		m(&args)
	}

	coll, err := r.colls.Create(context.Background(), ownerID, args)
	require.NoError(t, err)

	return coll
}

// memberPositions reads back the raw position sequence for a collection,
// ordered ascending.
func memberPositions(t *testing.T, r testRepo, collectionID string) []int {
	t.Helper()

	var positions []int
	err := r.db.Select(&positions,
		`SELECT position FROM collection_items WHERE collection_id = ? ORDER BY position;`, collectionID)
	require.NoError(t, err)

	return positions
}
