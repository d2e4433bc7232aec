// Package catalog projects product lifecycle events into a local read model and serves it
// through a read-through cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned by Get for unknown products.
	ErrNotFound = errors.New("product not found")
	// ErrMissingUpstream marks an update for a product whose create was never applied.
	ErrMissingUpstream = errors.New("missing upstream state")
)

// Catalog owns the derived product store and the cache in front of it.
//
// Mutations hold the key's write lock across the store write and the cache invalidation.
// Reads hold the read lock across cache lookup, store read and cache fill, so a reader can
// never put a value into the cache that an applied mutation already replaced.
type Catalog struct {
	store  Store
	cache  *expirable.LRU[string, Product]
	locks  keyLocks
	logger observability.Logger
	tracer observability.Tracer
}

// New creates a Catalog with an LRU cache of size entries that expire after ttl.
func New(store Store, size int, ttl time.Duration, logger observability.Logger) *Catalog {
	return &Catalog{
		store:  store,
		cache:  expirable.NewLRU[string, Product](size, nil, ttl),
		logger: logger,
		tracer: otel.Tracer("catalog"),
	}
}

// Get returns the product, from cache when possible.
func (c *Catalog) Get(ctx context.Context, id string) (Product, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.get")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	mu := c.locks.forKey(id)
	mu.RLock()
	defer mu.RUnlock()

	if p, ok := c.cache.Get(id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return p, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	p, found, err := c.store.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !found {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.cache.Add(id, p)
	return p, nil
}

// mutate runs fn under the key's write lock and invalidates the cache entry before releasing it.
func (c *Catalog) mutate(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	mu := c.locks.forKey(id)
	mu.Lock()
	defer mu.Unlock()

	err := fn(ctx)
	if c.cache.Remove(id) {
		c.logger.Debug("Cache entry invalidated", zap.String("product_id", id))
	}
	return err
}
