// Package redis provides a read-through Redis cache in front of the product
// catalog.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/product"
)

// DefaultTTL bounds how long a cached catalog entry may be served.
const DefaultTTL = 5 * time.Minute

const (
	keyPrefix = "feast:product:"
	listKey   = keyPrefix + "all"
)

var (
	_ product.Repository = (*ProductCache)(nil)
	_ product.Writer     = (*ProductCache)(nil)
)

// ProductCache decorates a product.Repository. Redis failures are logged and
// the request falls through to the underlying repository.
type ProductCache struct {
	client redis.UniversalClient
	next   product.Repository
	ttl    time.Duration
}

// NewProductCache wraps next with a cache stored in client.
func NewProductCache(client redis.UniversalClient, next product.Repository, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{client: client, next: next, ttl: ttl}
}

func productKey(id string) string { return keyPrefix + id }

// List returns the full catalog, served from cache when possible.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	var cached []product.Product
	if c.get(ctx, listKey, &cached) {
		return cached, nil
	}
	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, listKey, products)
	return products, nil
}

// GetByID returns a single product, served from cache when possible.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var cached product.Product
	if c.get(ctx, productKey(id), &cached) {
		return &cached, nil
	}
	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, productKey(id), p)
	return p, nil
}

// GetByIDs fetches cached entries in one round trip and loads the misses
// from the underlying repository.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.Error(err))
		return c.next.GetByIDs(ctx, ids)
	}

	out := make([]product.Product, 0, len(ids))
	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var p product.Product
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out = append(out, p)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for _, p := range loaded {
		if data, err := json.Marshal(p); err == nil {
			pipe.Set(ctx, productKey(p.ID), data, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.Error(err))
	}
	return append(out, loaded...), nil
}

// Upsert writes through to the underlying repository and evicts the
// affected cache entries.
func (c *ProductCache) Upsert(ctx context.Context, p product.Product) error {
	w, ok := c.next.(product.Writer)
	if !ok {
		return errors.New("product repository is read-only")
	}
	if err := w.Upsert(ctx, p); err != nil {
		return err
	}
	if err := c.client.Del(ctx, productKey(p.ID), listKey).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache evict failed", zap.Error(err))
	}
	return nil
}

// Purge drops every cached catalog entry.
func (c *ProductCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	return nil
}

func (c *ProductCache) get(ctx context.Context, key string, v any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		zctx.From(ctx).Warn("Product cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ProductCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}
