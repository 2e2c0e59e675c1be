package cached

import (
	"context"
	"fmt"

	"github.com/evanfuller/constellation/internal/cache"
	"github.com/evanfuller/constellation/internal/constellation"
)

// publicScope keys the cross-owner public listing, which has no owner of
// its own.
const publicScope = "~public"

var _ constellation.CollectionStore = (*Collections)(nil)

// Collections is the caching decorator around a CollectionStore.
type Collections struct {
	store  constellation.CollectionStore
	caches *Caches
}

func NewCollections(store constellation.CollectionStore, caches *Caches) *Collections {
	return &Collections{store: store, caches: caches}
}

func (s *Collections) List(ctx context.Context, ownerID string, args constellation.ListCollectionsArgs) (constellation.Page[constellation.CollectionSummary], error) {
	key := cache.Key(ownerID, fmt.Sprintf("list:%d:%d:%t", args.Page, args.Limit, args.IncludePublic))
	if page, ok := s.caches.collLists.Get(key); ok {
		return page, nil
	}

	page, err := s.store.List(ctx, ownerID, args)
	if err != nil {
		return page, err
	}
	s.caches.collLists.Set(key, page)

	return page, nil
}

func (s *Collections) Create(ctx context.Context, ownerID string, args constellation.CreateCollectionArgs) (constellation.Collection, error) {
	coll, err := s.store.Create(ctx, ownerID, args)
	if err != nil {
		return coll, err
	}
	s.caches.InvalidateOwner(ownerID)

	return coll, nil
}

func (s *Collections) Update(ctx context.Context, ownerID, collectionID string, args constellation.UpdateCollectionArgs) (constellation.Collection, error) {
	coll, err := s.store.Update(ctx, ownerID, collectionID, args)
	if err != nil {
		return coll, err
	}
	s.caches.InvalidateOwner(ownerID)
	s.caches.InvalidateCollection(collectionID)

	return coll, nil
}

func (s *Collections) Delete(ctx context.Context, ownerID, collectionID string) (bool, error) {
	found, err := s.store.Delete(ctx, ownerID, collectionID)
	if err != nil {
		return false, err
	}
	if found {
		s.caches.InvalidateOwner(ownerID)
		s.caches.InvalidateCollection(collectionID)
	}

	return found, nil
}

func (s *Collections) AddItem(ctx context.Context, collectionID, itemID string, args constellation.AddCollectionItemArgs) (constellation.CollectionItem, error) {
	membership, err := s.store.AddItem(ctx, collectionID, itemID, args)
	if err != nil {
		return membership, err
	}
	s.caches.InvalidateCollection(collectionID)

	return membership, nil
}

func (s *Collections) RemoveItem(ctx context.Context, collectionID, itemID string) (bool, error) {
	found, err := s.store.RemoveItem(ctx, collectionID, itemID)
	if err != nil {
		return false, err
	}
	if found {
		s.caches.InvalidateCollection(collectionID)
	}

	return found, nil
}

func (s *Collections) Reorder(ctx context.Context, ownerID, collectionID string, updates []constellation.PositionUpdate) error {
	if err := s.store.Reorder(ctx, ownerID, collectionID, updates); err != nil {
		return err
	}
	s.caches.InvalidateOwner(ownerID)
	s.caches.InvalidateCollection(collectionID)

	return nil
}

func (s *Collections) ListItems(ctx context.Context, collectionID string, args constellation.ListCollectionItemsArgs) (constellation.Page[constellation.CollectionEntry], error) {
	key := cache.Key(collectionID, fmt.Sprintf("items:%d:%d:%s", args.Page, args.Limit, args.SortBy))
	if page, ok := s.caches.collEntries.Get(key); ok {
		return page, nil
	}

	page, err := s.store.ListItems(ctx, collectionID, args)
	if err != nil {
		return page, err
	}
	s.caches.collEntries.Set(key, page)

	return page, nil
}

func (s *Collections) Stats(ctx context.Context, ownerID string) (constellation.CollectionStats, error) {
	key := cache.Key(ownerID, "stats")
	if stats, ok := s.caches.collStats.Get(key); ok {
		return stats, nil
	}

	stats, err := s.store.Stats(ctx, ownerID)
	if err != nil {
		return stats, err
	}
	s.caches.collStats.Set(key, stats)

	return stats, nil
}

func (s *Collections) ListPublic(ctx context.Context, args constellation.ListPublicArgs) (constellation.Page[constellation.CollectionSummary], error) {
	key := cache.Key(publicScope, fmt.Sprintf("list:%d:%d:%s", args.Page, args.Limit, args.Search))
	if page, ok := s.caches.publicLists.Get(key); ok {
		return page, nil
	}

	page, err := s.store.ListPublic(ctx, args)
	if err != nil {
		return page, err
	}
	s.caches.publicLists.Set(key, page)

	return page, nil
}
