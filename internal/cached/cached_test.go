package cached

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanfuller/constellation/internal/constellation"
)

// countingStore records how many times each read hits the base store so the
// tests can tell a cache hit from a pass-through.
type countingStore struct {
	listItems    int
	getItem      int
	searches     int
	itemStats    int
	listColls    int
	listEntries  int
	collStats    int
	listPublic   int
	failNextList bool
}

var (
	_ constellation.ItemStore       = (*countingStore)(nil)
	_ constellation.CollectionStore = countingCollStore{}
)

func (f *countingStore) List(ctx context.Context, ownerID string, args constellation.ListItemsArgs) (constellation.Page[constellation.AnnotatedItem], error) {
	f.listItems++
	if f.failNextList {
		f.failNextList = false
		return constellation.Page[constellation.AnnotatedItem]{}, constellation.ErrInvalidArgument
	}
	return constellation.Page[constellation.AnnotatedItem]{
		Meta: constellation.NewPageMeta(f.listItems, args.Page, args.Limit),
	}, nil
}

func (f *countingStore) Get(ctx context.Context, ownerID, itemID string) (constellation.SavedItem, error) {
	f.getItem++
	return constellation.SavedItem{OwnerID: ownerID, ItemID: itemID}, nil
}

func (f *countingStore) Add(ctx context.Context, ownerID string, args constellation.AddItemArgs) (constellation.SavedItem, error) {
	return constellation.SavedItem{OwnerID: ownerID, ItemID: args.ItemID}, nil
}

func (f *countingStore) Update(ctx context.Context, ownerID, itemID string, args constellation.UpdateItemArgs) (constellation.SavedItem, error) {
	return constellation.SavedItem{OwnerID: ownerID, ItemID: itemID}, nil
}

func (f *countingStore) Remove(ctx context.Context, ownerID, itemID string) (bool, error) {
	return itemID != "missing", nil
}

func (f *countingStore) Search(ctx context.Context, ownerID, query string, args constellation.SearchArgs) (constellation.Page[constellation.SearchResult], error) {
	f.searches++
	return constellation.Page[constellation.SearchResult]{}, nil
}

func (f *countingStore) Stats(ctx context.Context, ownerID string) (constellation.ItemStats, error) {
	f.itemStats++
	return constellation.ItemStats{TotalActive: f.itemStats}, nil
}

type countingCollStore struct {
	*countingStore
}

func (f countingCollStore) List(ctx context.Context, ownerID string, args constellation.ListCollectionsArgs) (constellation.Page[constellation.CollectionSummary], error) {
	f.listColls++
	return constellation.Page[constellation.CollectionSummary]{}, nil
}

func (f countingCollStore) Create(ctx context.Context, ownerID string, args constellation.CreateCollectionArgs) (constellation.Collection, error) {
	return constellation.Collection{OwnerID: ownerID, Name: args.Name}, nil
}

func (f countingCollStore) Update(ctx context.Context, ownerID, collectionID string, args constellation.UpdateCollectionArgs) (constellation.Collection, error) {
	return constellation.Collection{ID: collectionID, OwnerID: ownerID}, nil
}

func (f countingCollStore) Delete(ctx context.Context, ownerID, collectionID string) (bool, error) {
	return true, nil
}

func (f countingCollStore) AddItem(ctx context.Context, collectionID, itemID string, args constellation.AddCollectionItemArgs) (constellation.CollectionItem, error) {
	return constellation.CollectionItem{CollectionID: collectionID, ItemID: itemID}, nil
}

func (f countingCollStore) RemoveItem(ctx context.Context, collectionID, itemID string) (bool, error) {
	return true, nil
}

func (f countingCollStore) Reorder(ctx context.Context, ownerID, collectionID string, updates []constellation.PositionUpdate) error {
	return nil
}

func (f countingCollStore) ListItems(ctx context.Context, collectionID string, args constellation.ListCollectionItemsArgs) (constellation.Page[constellation.CollectionEntry], error) {
	f.listEntries++
	return constellation.Page[constellation.CollectionEntry]{}, nil
}

func (f countingCollStore) Stats(ctx context.Context, ownerID string) (constellation.CollectionStats, error) {
	f.collStats++
	return constellation.CollectionStats{TotalCollections: f.collStats}, nil
}

func (f countingCollStore) ListPublic(ctx context.Context, args constellation.ListPublicArgs) (constellation.Page[constellation.CollectionSummary], error) {
	f.listPublic++
	return constellation.Page[constellation.CollectionSummary]{}, nil
}

func pageArgs() constellation.PageArgs {
	return constellation.PageArgs{Page: 1, Limit: 10}
}

func TestListIsReadThrough(t *testing.T) {
	var (
		ctx   = context.Background()
		base  = &countingStore{}
		items = NewItems(base, NewCaches(64, time.Minute))
	)

	args := constellation.ListItemsArgs{PageArgs: pageArgs()}
	first, err := items.List(ctx, "user-1", args)
	require.NoError(t, err)

	second, err := items.List(ctx, "user-1", args)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.listItems)

	// Different arguments are a different key.
	_, err = items.List(ctx, "user-1", constellation.ListItemsArgs{PageArgs: pageArgs(), IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, 2, base.listItems)

	// Different owners never share entries.
	_, err = items.List(ctx, "user-2", args)
	require.NoError(t, err)
	assert.Equal(t, 3, base.listItems)
}

func TestErrorsAreNotCached(t *testing.T) {
	var (
		ctx   = context.Background()
		base  = &countingStore{failNextList: true}
		items = NewItems(base, NewCaches(64, time.Minute))
	)

	args := constellation.ListItemsArgs{PageArgs: pageArgs()}
	_, err := items.List(ctx, "user-1", args)
	require.ErrorIs(t, err, constellation.ErrInvalidArgument)

	// The failed read left nothing behind; the retry hits the store.
	_, err = items.List(ctx, "user-1", args)
	require.NoError(t, err)
	assert.Equal(t, 2, base.listItems)
}

func TestSearchKeysDoNotCollide(t *testing.T) {
	var (
		ctx   = context.Background()
		base  = &countingStore{}
		items = NewItems(base, NewCaches(64, time.Minute))
	)

	// One tag containing a comma and two plain tags are different searches.
	joined := constellation.SearchArgs{PageArgs: pageArgs(), Tags: []string{"a,b"}}
	split := constellation.SearchArgs{PageArgs: pageArgs(), Tags: []string{"a", "b"}}

	_, err := items.Search(ctx, "user-1", "galaxy", joined)
	require.NoError(t, err)
	_, err = items.Search(ctx, "user-1", "galaxy", split)
	require.NoError(t, err)
	assert.Equal(t, 2, base.searches)

	// Repeats of each still hit the cache.
	_, err = items.Search(ctx, "user-1", "galaxy", joined)
	require.NoError(t, err)
	_, err = items.Search(ctx, "user-1", "galaxy", split)
	require.NoError(t, err)
	assert.Equal(t, 2, base.searches)
}

func TestWritesInvalidateOwner(t *testing.T) {
	var (
		ctx   = context.Background()
		base  = &countingStore{}
		items = NewItems(base, NewCaches(64, time.Minute))
	)

	args := constellation.ListItemsArgs{PageArgs: pageArgs()}
	_, err := items.List(ctx, "user-1", args)
	require.NoError(t, err)
	_, err = items.Stats(ctx, "user-1")
	require.NoError(t, err)
	_, err = items.List(ctx, "user-2", args)
	require.NoError(t, err)

	_, err = items.Add(ctx, "user-1", constellation.AddItemArgs{ItemID: "apod-1", ItemType: constellation.ItemTypeAPOD})
	require.NoError(t, err)

	// The writer's cached reads are gone; the other owner's survive.
	_, err = items.List(ctx, "user-1", args)
	require.NoError(t, err)
	_, err = items.Stats(ctx, "user-1")
	require.NoError(t, err)
	_, err = items.List(ctx, "user-2", args)
	require.NoError(t, err)
	assert.Equal(t, 3, base.listItems)
	assert.Equal(t, 2, base.itemStats)
}

func TestRemoveMissInvalidatesNothing(t *testing.T) {
	var (
		ctx   = context.Background()
		base  = &countingStore{}
		items = NewItems(base, NewCaches(64, time.Minute))
	)

	_, err := items.Get(ctx, "user-1", "apod-1")
	require.NoError(t, err)

	found, err := items.Remove(ctx, "user-1", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = items.Get(ctx, "user-1", "apod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, base.getItem)
}

func TestMembershipWritesInvalidateCollection(t *testing.T) {
	var (
		ctx    = context.Background()
		base   = countingCollStore{&countingStore{}}
		caches = NewCaches(64, time.Minute)
		items  = NewItems(base.countingStore, caches)
		colls  = NewCollections(base, caches)
	)

	listArgs := constellation.ListCollectionItemsArgs{PageArgs: pageArgs()}
	_, err := colls.ListItems(ctx, "col-1", listArgs)
	require.NoError(t, err)
	_, err = colls.ListItems(ctx, "col-2", listArgs)
	require.NoError(t, err)
	_, err = items.List(ctx, "user-1", constellation.ListItemsArgs{PageArgs: pageArgs()})
	require.NoError(t, err)

	_, err = colls.AddItem(ctx, "col-1", "apod-1", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)

	// The touched collection's pages and the owner-keyed item rollups are
	// refetched; the other collection's pages still hit the cache.
	_, err = colls.ListItems(ctx, "col-1", listArgs)
	require.NoError(t, err)
	_, err = colls.ListItems(ctx, "col-2", listArgs)
	require.NoError(t, err)
	assert.Equal(t, 3, base.listEntries)

	_, err = items.List(ctx, "user-1", constellation.ListItemsArgs{PageArgs: pageArgs()})
	require.NoError(t, err)
	assert.Equal(t, 2, base.listItems)
}

func TestPublicListingInvalidatedByCollectionWrites(t *testing.T) {
	var (
		ctx    = context.Background()
		base   = countingCollStore{&countingStore{}}
		caches = NewCaches(64, time.Minute)
		colls  = NewCollections(base, caches)
	)

	publicArgs := constellation.ListPublicArgs{PageArgs: pageArgs()}
	_, err := colls.ListPublic(ctx, publicArgs)
	require.NoError(t, err)
	_, err = colls.ListPublic(ctx, publicArgs)
	require.NoError(t, err)
	assert.Equal(t, 1, base.listPublic)

	// Flipping a collection public/private must show up immediately.
	_, err = colls.Update(ctx, "user-1", "col-1", constellation.UpdateCollectionArgs{IsPublic: boolPtr(true)})
	require.NoError(t, err)

	_, err = colls.ListPublic(ctx, publicArgs)
	require.NoError(t, err)
	assert.Equal(t, 2, base.listPublic)
}

func boolPtr(b bool) *bool { return &b }
