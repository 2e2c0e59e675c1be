package cached

import (
	"context"
	"fmt"

	"github.com/evanfuller/constellation/internal/cache"
	"github.com/evanfuller/constellation/internal/constellation"
)

var _ constellation.ItemStore = (*Items)(nil)

// Items is the caching decorator around an ItemStore.
type Items struct {
	store  constellation.ItemStore
	caches *Caches
}

func NewItems(store constellation.ItemStore, caches *Caches) *Items {
	return &Items{store: store, caches: caches}
}

func (s *Items) List(ctx context.Context, ownerID string, args constellation.ListItemsArgs) (constellation.Page[constellation.AnnotatedItem], error) {
	key := cache.Key(ownerID, fmt.Sprintf("list:%d:%d:%s:%t", args.Page, args.Limit, args.Type, args.IncludeArchived))
	if page, ok := s.caches.itemLists.Get(key); ok {
		return page, nil
	}

	page, err := s.store.List(ctx, ownerID, args)
	if err != nil {
		return page, err
	}
	s.caches.itemLists.Set(key, page)

	return page, nil
}

func (s *Items) Get(ctx context.Context, ownerID, itemID string) (constellation.SavedItem, error) {
	key := cache.Key(ownerID, "get:"+itemID)
	if item, ok := s.caches.items.Get(key); ok {
		return item, nil
	}

	item, err := s.store.Get(ctx, ownerID, itemID)
	if err != nil {
		return item, err
	}
	s.caches.items.Set(key, item)

	return item, nil
}

func (s *Items) Add(ctx context.Context, ownerID string, args constellation.AddItemArgs) (constellation.SavedItem, error) {
	item, err := s.store.Add(ctx, ownerID, args)
	if err != nil {
		return item, err
	}
	s.caches.InvalidateOwner(ownerID)

	return item, nil
}

func (s *Items) Update(ctx context.Context, ownerID, itemID string, args constellation.UpdateItemArgs) (constellation.SavedItem, error) {
	item, err := s.store.Update(ctx, ownerID, itemID, args)
	if err != nil {
		return item, err
	}
	s.caches.InvalidateOwner(ownerID)

	return item, nil
}

func (s *Items) Remove(ctx context.Context, ownerID, itemID string) (bool, error) {
	found, err := s.store.Remove(ctx, ownerID, itemID)
	if err != nil {
		return false, err
	}
	if found {
		s.caches.InvalidateOwner(ownerID)
	}

	return found, nil
}

func (s *Items) Search(ctx context.Context, ownerID, query string, args constellation.SearchArgs) (constellation.Page[constellation.SearchResult], error) {
	// Each variable-length component is Go-quoted so a delimiter inside the
	// query or a tag can never collide with a different argument list.
	suffix := fmt.Sprintf("search:%q:%d:%d:%q:%q", query, args.Page, args.Limit, args.Types, args.Tags)
	key := cache.Key(ownerID, suffix)
	if page, ok := s.caches.searches.Get(key); ok {
		return page, nil
	}

	page, err := s.store.Search(ctx, ownerID, query, args)
	if err != nil {
		return page, err
	}
	s.caches.searches.Set(key, page)

	return page, nil
}

func (s *Items) Stats(ctx context.Context, ownerID string) (constellation.ItemStats, error) {
	key := cache.Key(ownerID, "stats")
	if stats, ok := s.caches.itemStats.Get(key); ok {
		return stats, nil
	}

	stats, err := s.store.Stats(ctx, ownerID)
	if err != nil {
		return stats, err
	}
	s.caches.itemStats.Set(key, stats)

	return stats, nil
}
