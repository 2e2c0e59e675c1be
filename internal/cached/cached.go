// Package cached wraps the stores with read-through caching: reads consult
// the injected TTL cache, writes pass through to the base store and then
// invalidate synchronously.
package cached

import (
	"time"

	"github.com/evanfuller/constellation/internal/cache"
	"github.com/evanfuller/constellation/internal/constellation"
)

// Caches bundles the per-shape query caches shared by both decorated
// stores. It is constructed once in main and injected; there is no
// package-level instance.
type Caches struct {
	itemLists *cache.Keyed[constellation.Page[constellation.AnnotatedItem]]
	items     *cache.Keyed[constellation.SavedItem]
	searches  *cache.Keyed[constellation.Page[constellation.SearchResult]]
	itemStats *cache.Keyed[constellation.ItemStats]

	collLists   *cache.Keyed[constellation.Page[constellation.CollectionSummary]]
	collEntries *cache.Keyed[constellation.Page[constellation.CollectionEntry]]
	collStats   *cache.Keyed[constellation.CollectionStats]
	publicLists *cache.Keyed[constellation.Page[constellation.CollectionSummary]]
}

func NewCaches(size int, ttl time.Duration) *Caches {
	return &Caches{
		itemLists:   cache.New[constellation.Page[constellation.AnnotatedItem]](size, ttl),
		items:       cache.New[constellation.SavedItem](size, ttl),
		searches:    cache.New[constellation.Page[constellation.SearchResult]](size, ttl),
		itemStats:   cache.New[constellation.ItemStats](size, ttl),
		collLists:   cache.New[constellation.Page[constellation.CollectionSummary]](size, ttl),
		collEntries: cache.New[constellation.Page[constellation.CollectionEntry]](size, ttl),
		collStats:   cache.New[constellation.CollectionStats](size, ttl),
		publicLists: cache.New[constellation.Page[constellation.CollectionSummary]](size, ttl),
	}
}

// InvalidateOwner drops every cached read that could reflect the owner's
// data. Membership pages are keyed by collection id rather than owner, and
// the public listing spans owners, so both are dropped wholesale.
func (c *Caches) InvalidateOwner(ownerID string) {
	c.itemLists.Invalidate(ownerID)
	c.items.Invalidate(ownerID)
	c.searches.Invalidate(ownerID)
	c.itemStats.Invalidate(ownerID)
	c.collLists.Invalidate(ownerID)
	c.collStats.Invalidate(ownerID)
	c.collEntries.Purge()
	c.publicLists.Purge()
}

// InvalidateCollection drops caches after a membership write, where only the
// collection id is known. Owner-keyed rollups (membership counts on item
// lists, collection sizes) could all be affected, so they go too.
func (c *Caches) InvalidateCollection(collectionID string) {
	c.collEntries.Invalidate(collectionID)
	c.itemLists.Purge()
	c.collLists.Purge()
	c.collStats.Purge()
	c.publicLists.Purge()
}
