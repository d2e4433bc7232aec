// Package correlation holds the latest known answer to cross-service questions, keyed by the
// entity the question was about. Entries are hints, never the source of truth.
package correlation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Fact is a cached answer. The zero Fact is Unknown, which is distinct from a known empty value.
type Fact[V any] struct {
	Value     V
	Known     bool
	UpdatedAt time.Time
}

// Cache is safe for concurrent use by every worker of a service.
type Cache[V any] struct {
	entries *expirable.LRU[string, Fact[V]]
}

// New creates a Cache holding at most size entries (0 for no bound). Entries older than ttl
// report Unknown again; ttl 0 keeps them until evicted.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{entries: expirable.NewLRU[string, Fact[V]](size, nil, ttl)}
}

// Get returns the fact for key, or an Unknown fact.
func (c *Cache[V]) Get(key string) Fact[V] {
	if f, ok := c.entries.Get(key); ok {
		return f
	}
	return Fact[V]{}
}

// Put records value as the latest known answer for key.
func (c *Cache[V]) Put(key string, value V) Fact[V] {
	f := Fact[V]{Value: value, Known: true, UpdatedAt: time.Now().UTC()}
	c.entries.Add(key, f)
	return f
}

// Evict forgets key; later reads report Unknown.
func (c *Cache[V]) Evict(key string) {
	c.entries.Remove(key)
}

func (c *Cache[V]) Len() int {
	return c.entries.Len()
}
