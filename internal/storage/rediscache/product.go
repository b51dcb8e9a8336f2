// Package rediscache provides a read-through Redis cache in front of the
// product catalog.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// DefaultTTL is how long a cached product is served before it is reloaded.
const DefaultTTL = time.Minute

var _ product.Catalog = (*ProductCache)(nil)

// ProductCache caches single-product lookups under "product:{id}". Lists are
// never cached. Writes go to the underlying catalog first and then drop the
// cached entry.
//
// Redis failures are logged and never fail a request: the cache degrades to
// a pass-through.
type ProductCache struct {
	next product.Catalog
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewProductCache wraps next with a cache stored in rdb.
func NewProductCache(next product.Catalog, rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{next: next, rdb: rdb, ttl: ttl}
}

func productKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// List bypasses the cache.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	return c.next.List(ctx)
}

// GetByID serves from Redis when possible and populates it on a miss.
func (c *ProductCache) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	key := productKey(id)
	lg := zctx.From(ctx).With(zap.String("cache_key", key))

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		p, err := decodeProduct(data)
		if err == nil {
			return p, nil
		}
		lg.Warn("Dropping undecodable cache entry", zap.Error(err))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Product cache read failed", zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.rdb.Set(ctx, key, encodeProduct(p), c.ttl).Err(); err != nil {
		lg.Warn("Product cache write failed", zap.Error(err))
	}
	return p, nil
}

// Create inserts into the catalog and drops any stale entry for the new id.
func (c *ProductCache) Create(ctx context.Context, p *product.Product) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.Evict(ctx, p.ID)
	return nil
}

// Update writes through to the catalog and evicts the entry.
func (c *ProductCache) Update(ctx context.Context, p *product.Product) error {
	if err := c.next.Update(ctx, p); err != nil {
		return err
	}
	c.Evict(ctx, p.ID)
	return nil
}

// Delete removes from the catalog and evicts the entry.
func (c *ProductCache) Delete(ctx context.Context, id int64) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.Evict(ctx, id)
	return nil
}

// Evict drops the cached entry for id. Purchases call it after stock changed.
func (c *ProductCache) Evict(ctx context.Context, id int64) {
	if err := c.rdb.Del(ctx, productKey(id)).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache evict failed",
			zap.Int64("product_id", id),
			zap.Error(err),
		)
	}
}
