package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/bits-and-blooms/bloom/v3"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
)

// Cache read-through product cache. A bloom filter front-rejects lookups for
// product ids that were never loaded into the catalog, so checkout validation
// of bogus ids does not reach the database. Stock ledger writes invalidate
// the cached entry for the touched product.
type Cache struct {
	products repository.ProductRepository
	local    *bigcache.BigCache

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCache creates a product cache
func NewCache(products repository.ProductRepository, ttl time.Duration, bloomCapacity uint) (*Cache, error) {
	local, err := bigcache.New(context.Background(), bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	return &Cache{
		products: products,
		local:    local,
		filter:   bloom.NewWithEstimates(bloomCapacity, 0.01),
	}, nil
}

// Warm loads all known product ids into the bloom filter. Call once at
// startup; newly created products are added via Admit.
func (c *Cache) Warm(ctx context.Context) error {
	const pageSize = 1000

	c.mu.Lock()
	defer c.mu.Unlock()

	for page := 1; ; page++ {
		products, _, err := c.products.List(ctx, page, pageSize, false)
		if err != nil {
			return err
		}
		for _, p := range products {
			c.filter.Add(productKey(p.ID))
		}
		if len(products) < pageSize {
			break
		}
	}

	log.Info("Product bloom filter warmed")
	return nil
}

// Admit registers a newly created product id with the filter
func (c *Cache) Admit(productID uint64) {
	c.mu.Lock()
	c.filter.Add(productKey(productID))
	c.mu.Unlock()
}

// Get returns a product, serving from the local cache when possible
func (c *Cache) Get(ctx context.Context, productID uint64) (*model.Product, error) {
	key := string(productKey(productID))

	c.mu.RLock()
	known := c.filter.Test(productKey(productID))
	c.mu.RUnlock()
	if !known {
		return nil, apperr.NotFound("product not found").WithDetail("product_id", productID)
	}

	if data, err := c.local.Get(key); err == nil {
		var product model.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
		// Corrupt entry, fall through to the repository
		_ = c.local.Delete(key)
	}

	product, err := c.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		_ = c.local.Set(key, data)
	}

	return product, nil
}

// Invalidate drops the cached entry for a product. Called after every stock
// ledger write so listings never serve a stale quantity for long.
func (c *Cache) Invalidate(productID uint64) {
	_ = c.local.Delete(string(productKey(productID)))
}

func productKey(id uint64) []byte {
	return []byte(fmt.Sprintf("product:%d", id))
}
