package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanfuller/constellation/internal/constellation"
)

func TestCreateCollection(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Nebulae", func(args *constellation.CreateCollectionArgs) {
		args.Description = strPtr("Favorite nebulae shots")
		args.IsPublic = true
	})
	assert.True(t, strings.HasSuffix(coll.ID, "-col"))
	assert.Equal(t, owner, coll.OwnerID)
	assert.Equal(t, "Nebulae", coll.Name)
	assert.True(t, coll.IsPublic)

	// Same name, same owner: rejected.
	_, err := r.colls.Create(ctx, owner, constellation.CreateCollectionArgs{Name: "Nebulae"})
	assert.ErrorIs(t, err, constellation.ErrAlreadyExists)

	// Same name, different owner: fine.
	_, err = r.colls.Create(ctx, "user-2", constellation.CreateCollectionArgs{Name: "Nebulae"})
	assert.NoError(t, err)
}

func TestCreateCollectionValidation(t *testing.T) {
	var (
		ctx = context.Background()
		r   = newTestRepo(t)
	)

	longName := strings.Repeat("n", 101)
	longDesc := strings.Repeat("d", 501)

	for _, args := range []constellation.CreateCollectionArgs{
		{Name: ""},
		{Name: longName},
		{Name: "ok", Description: &longDesc},
	} {
		_, err := r.colls.Create(ctx, "user-1", args)
		assert.ErrorIs(t, err, constellation.ErrInvalidArgument)
	}
}

func TestUpdateCollection(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Nebulae")
	seedCollection(t, r, owner, "Rovers")

	updated, err := r.colls.Update(ctx, owner, coll.ID, constellation.UpdateCollectionArgs{
		Name:     strPtr("Deep Sky"),
		IsPublic: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Deep Sky", updated.Name)
	assert.True(t, updated.IsPublic)

	// Renaming onto a sibling collides; renaming onto itself does not.
	_, err = r.colls.Update(ctx, owner, coll.ID, constellation.UpdateCollectionArgs{Name: strPtr("Rovers")})
	assert.ErrorIs(t, err, constellation.ErrAlreadyExists)
	_, err = r.colls.Update(ctx, owner, coll.ID, constellation.UpdateCollectionArgs{Name: strPtr("Deep Sky")})
	assert.NoError(t, err)

	_, err = r.colls.Update(ctx, owner, coll.ID, constellation.UpdateCollectionArgs{})
	assert.ErrorIs(t, err, constellation.ErrInvalidArgument)

	// Not the owner: looks like it does not exist.
	_, err = r.colls.Update(ctx, "user-2", coll.ID, constellation.UpdateCollectionArgs{Name: strPtr("Mine Now")})
	assert.ErrorIs(t, err, constellation.ErrNotFound)
}

func TestDeleteCollectionCascades(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Nebulae")
	seedItem(t, r, owner, "apod-1")
	_, err := r.colls.AddItem(ctx, coll.ID, "apod-1", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)

	// Wrong owner deletes nothing.
	found, err := r.colls.Delete(ctx, "user-2", coll.ID)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = r.colls.Delete(ctx, owner, coll.ID)
	require.NoError(t, err)
	assert.True(t, found)

	var memberships int
	require.NoError(t, r.db.Get(&memberships,
		`SELECT COUNT(*) FROM collection_items WHERE collection_id = ?;`, coll.ID))
	assert.Zero(t, memberships)

	// Already gone.
	found, err = r.colls.Delete(ctx, owner, coll.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

// The end-to-end scenario: save, collect, append, compact.
func TestMembershipLifecycle(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	seedItem(t, r, owner, "apod-2024-01-01", func(args *constellation.AddItemArgs) {
		args.Title = "Galaxy"
	})

	page, err := r.items.List(ctx, owner, constellation.ListItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 0, page.Items[0].CollectionCount)

	coll := seedCollection(t, r, owner, "Nebulae")

	first, err := r.colls.AddItem(ctx, coll.ID, "apod-2024-01-01", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)

	seedItem(t, r, owner, "apod-2024-01-02")
	second, err := r.colls.AddItem(ctx, coll.ID, "apod-2024-01-02", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	found, err := r.colls.RemoveItem(ctx, coll.ID, "apod-2024-01-01")
	require.NoError(t, err)
	assert.True(t, found)

	// The survivor compacts down to position 0.
	assert.Equal(t, []int{0}, memberPositions(t, r, coll.ID))
}

func TestAddItemChecks(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Nebulae")
	seedItem(t, r, owner, "apod-1")

	_, err := r.colls.AddItem(ctx, "nope", "apod-1", constellation.AddCollectionItemArgs{})
	assert.ErrorIs(t, err, constellation.ErrNotFound)

	_, err = r.colls.AddItem(ctx, coll.ID, "missing", constellation.AddCollectionItemArgs{})
	assert.ErrorIs(t, err, constellation.ErrNotFound)

	// Archived items cannot join a collection.
	seedItem(t, r, owner, "archived-1")
	_, err = r.items.Remove(ctx, owner, "archived-1")
	require.NoError(t, err)
	_, err = r.colls.AddItem(ctx, coll.ID, "archived-1", constellation.AddCollectionItemArgs{})
	assert.ErrorIs(t, err, constellation.ErrNotFound)

	_, err = r.colls.AddItem(ctx, coll.ID, "apod-1", constellation.AddCollectionItemArgs{Position: intPtr(-1)})
	assert.ErrorIs(t, err, constellation.ErrInvalidArgument)

	_, err = r.colls.AddItem(ctx, coll.ID, "apod-1", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)

	// A duplicate add fails and leaves the membership count unchanged.
	_, err = r.colls.AddItem(ctx, coll.ID, "apod-1", constellation.AddCollectionItemArgs{})
	assert.ErrorIs(t, err, constellation.ErrAlreadyExists)

	var count int
	require.NoError(t, r.db.Get(&count,
		`SELECT COUNT(*) FROM collection_items WHERE collection_id = ?;`, coll.ID))
	assert.Equal(t, 1, count)
}

func TestAddItemAtPosition(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Ordered")
	for _, id := range []string{"a", "b"} {
		seedItem(t, r, owner, id)
		_, err := r.colls.AddItem(ctx, coll.ID, id, constellation.AddCollectionItemArgs{})
		require.NoError(t, err)
	}

	// Inserting at the front shifts the others up instead of colliding.
	seedItem(t, r, owner, "c")
	front, err := r.colls.AddItem(ctx, coll.ID, "c", constellation.AddCollectionItemArgs{Position: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, front.Position)

	page, err := r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "c", page.Items[0].ItemID)
	assert.Equal(t, "a", page.Items[1].ItemID)
	assert.Equal(t, "b", page.Items[2].ItemID)
	assert.Equal(t, []int{0, 1, 2}, memberPositions(t, r, coll.ID))

	// A slot far past the end clamps onto the next free position.
	seedItem(t, r, owner, "d")
	tail, err := r.colls.AddItem(ctx, coll.ID, "d", constellation.AddCollectionItemArgs{Position: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 3, tail.Position)
	assert.Equal(t, []int{0, 1, 2, 3}, memberPositions(t, r, coll.ID))
}

func TestPositionsStayContiguous(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Churn")
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		seedItem(t, r, owner, id)
		_, err := r.colls.AddItem(ctx, coll.ID, id, constellation.AddCollectionItemArgs{})
		require.NoError(t, err)
	}

	for _, victim := range []string{"b", "d"} {
		found, err := r.colls.RemoveItem(ctx, coll.ID, victim)
		require.NoError(t, err)
		assert.True(t, found)
	}

	assert.Equal(t, []int{0, 1, 2}, memberPositions(t, r, coll.ID))

	// Removing a non-member reports false and changes nothing.
	found, err := r.colls.RemoveItem(ctx, coll.ID, "b")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []int{0, 1, 2}, memberPositions(t, r, coll.ID))
}

func TestReorder(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Ordered")
	for _, id := range []string{"a", "b", "c"} {
		seedItem(t, r, owner, id)
		_, err := r.colls.AddItem(ctx, coll.ID, id, constellation.AddCollectionItemArgs{})
		require.NoError(t, err)
	}

	err := r.colls.Reorder(ctx, owner, coll.ID, []constellation.PositionUpdate{
		{ItemID: "c", Position: 0},
		{ItemID: "a", Position: 1},
		{ItemID: "b", Position: 2},
	})
	require.NoError(t, err)

	page, err := r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "c", page.Items[0].ItemID)
	assert.Equal(t, "a", page.Items[1].ItemID)
	assert.Equal(t, "b", page.Items[2].ItemID)

	// A partial reorder still leaves a dense sequence behind.
	err = r.colls.Reorder(ctx, owner, coll.ID, []constellation.PositionUpdate{{ItemID: "b", Position: 10}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, memberPositions(t, r, coll.ID))

	// Validation and ownership failures.
	err = r.colls.Reorder(ctx, owner, coll.ID, nil)
	assert.ErrorIs(t, err, constellation.ErrInvalidArgument)
	err = r.colls.Reorder(ctx, owner, coll.ID, []constellation.PositionUpdate{{ItemID: "a", Position: -1}})
	assert.ErrorIs(t, err, constellation.ErrInvalidArgument)
	err = r.colls.Reorder(ctx, "user-2", coll.ID, []constellation.PositionUpdate{{ItemID: "a", Position: 0}})
	assert.ErrorIs(t, err, constellation.ErrNotFound)

	// An unknown member rolls the whole batch back.
	err = r.colls.Reorder(ctx, owner, coll.ID, []constellation.PositionUpdate{
		{ItemID: "a", Position: 2},
		{ItemID: "ghost", Position: 0},
	})
	assert.ErrorIs(t, err, constellation.ErrNotFound)
	page, err = r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, "c", page.Items[0].ItemID)
}

func TestListItems(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	coll := seedCollection(t, r, owner, "Nebulae")
	seedItem(t, r, owner, "zeta", func(args *constellation.AddItemArgs) { args.Title = "Zeta" })
	seedItem(t, r, owner, "alpha", func(args *constellation.AddItemArgs) { args.Title = "Alpha" })
	for _, id := range []string{"zeta", "alpha"} {
		_, err := r.colls.AddItem(ctx, coll.ID, id, constellation.AddCollectionItemArgs{Notes: strPtr("note for " + id)})
		require.NoError(t, err)
	}

	byPosition, err := r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, byPosition.Items, 2)
	assert.Equal(t, "zeta", byPosition.Items[0].ItemID)
	assert.Equal(t, 0, byPosition.Items[0].Position)
	require.NotNil(t, byPosition.Items[0].Notes)
	assert.Equal(t, "note for zeta", *byPosition.Items[0].Notes)

	byTitle, err := r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{
		PageArgs: constellation.PageArgs{Page: 1, Limit: 10},
		SortBy:   constellation.SortByTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha", byTitle.Items[0].ItemID)

	// Archiving hides the member without destroying the membership.
	_, err = r.items.Remove(ctx, owner, "zeta")
	require.NoError(t, err)
	page, err := r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "alpha", page.Items[0].ItemID)
	assert.Equal(t, 1, page.Meta.Total)

	_, err = r.colls.ListItems(ctx, "nope", constellation.ListCollectionItemsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	assert.ErrorIs(t, err, constellation.ErrNotFound)

	_, err = r.colls.ListItems(ctx, coll.ID, constellation.ListCollectionItemsArgs{
		PageArgs: constellation.PageArgs{Page: 1, Limit: 10},
		SortBy:   "sneaky",
	})
	assert.ErrorIs(t, err, constellation.ErrInvalidArgument)
}

func TestListCollections(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	mine := seedCollection(t, r, owner, "Mine")
	seedCollection(t, r, "user-2", "Theirs Public", func(args *constellation.CreateCollectionArgs) {
		args.IsPublic = true
	})
	seedCollection(t, r, "user-2", "Theirs Private")

	seedItem(t, r, owner, "apod-1")
	_, err := r.colls.AddItem(ctx, mine.ID, "apod-1", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)

	own, err := r.colls.List(ctx, owner, constellation.ListCollectionsArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)
	assert.Equal(t, "Mine", own.Items[0].Name)
	assert.Equal(t, 1, own.Items[0].ItemCount)
	assert.True(t, own.Items[0].IsOwner)

	withPublic, err := r.colls.List(ctx, owner, constellation.ListCollectionsArgs{
		PageArgs:      constellation.PageArgs{Page: 1, Limit: 10},
		IncludePublic: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, withPublic.Meta.Total)
	for _, summary := range withPublic.Items {
		assert.Equal(t, summary.OwnerID == owner, summary.IsOwner)
	}
}

func TestListPublic(t *testing.T) {
	var (
		ctx = context.Background()
		r   = newTestRepo(t)
	)

	seedCollection(t, r, "user-1", "Galaxy Shots", func(args *constellation.CreateCollectionArgs) {
		args.IsPublic = true
	})
	seedCollection(t, r, "user-2", "Rover Tracks", func(args *constellation.CreateCollectionArgs) {
		args.Description = strPtr("Mentions a galaxy in passing")
		args.IsPublic = true
	})
	seedCollection(t, r, "user-2", "Hidden")

	all, err := r.colls.ListPublic(ctx, constellation.ListPublicArgs{PageArgs: constellation.PageArgs{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Meta.Total)
	for _, summary := range all.Items {
		assert.False(t, summary.IsOwner)
	}

	// A name match outranks a description match.
	searched, err := r.colls.ListPublic(ctx, constellation.ListPublicArgs{
		PageArgs: constellation.PageArgs{Page: 1, Limit: 10},
		Search:   "galaxy",
	})
	require.NoError(t, err)
	require.Len(t, searched.Items, 2)
	assert.Equal(t, "Galaxy Shots", searched.Items[0].Name)
}

func TestCollectionStats(t *testing.T) {
	var (
		ctx   = context.Background()
		r     = newTestRepo(t)
		owner = "user-1"
	)

	big := seedCollection(t, r, owner, "Big", func(args *constellation.CreateCollectionArgs) {
		args.IsPublic = true
	})
	small := seedCollection(t, r, owner, "Small")

	for _, id := range []string{"a", "b", "c"} {
		seedItem(t, r, owner, id)
		_, err := r.colls.AddItem(ctx, big.ID, id, constellation.AddCollectionItemArgs{})
		require.NoError(t, err)
	}
	_, err := r.colls.AddItem(ctx, small.ID, "a", constellation.AddCollectionItemArgs{})
	require.NoError(t, err)

	stats, err := r.colls.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCollections)
	assert.Equal(t, 1, stats.PublicCollections)
	assert.Equal(t, 1, stats.PrivateCollections)
	assert.Equal(t, 4, stats.TotalItems)
	assert.InDelta(t, 2.0, stats.AvgItemsPerColl, 0.001)
	assert.Equal(t, 3, stats.MaxCollectionSize)

	empty, err := r.colls.Stats(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, constellation.CollectionStats{}, empty)
}
