// Package cache provides the time-boxed query cache that fronts the stores.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Keyed is a TTL-bounded cache whose keys carry a scope prefix (usually the
// owner id) so one scope's entries can be dropped together. Entries are
// derived, expendable copies; the relational store stays the source of
// truth.
type Keyed[V any] struct {
	lru *expirable.LRU[string, V]
}

func New[V any](size int, ttl time.Duration) *Keyed[V] {
	return &Keyed[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Key builds a scoped cache key.
func Key(scope, suffix string) string {
	return scope + "|" + suffix
}

func (c *Keyed[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Keyed[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Invalidate drops every entry under the scope. Over-invalidating is safe;
// under-invalidating is a correctness bug, so invalidation stays coarse.
func (c *Keyed[V]) Invalidate(scope string) {
	prefix := scope + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Purge drops everything.
func (c *Keyed[V]) Purge() {
	c.lru.Purge()
}

func (c *Keyed[V]) Len() int {
	return c.lru.Len()
}
