package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
)

type entry struct {
	product iap.Product
	handle  *iap.StoreProduct

	// generation of the fetch that wrote the entry
	generation uint64
}

// Catalog caches the products returned by the storefront, keyed by product
// ID, along with the storefront handle purchases are submitted against.
//
// Entries are only ever replaced, never removed. A fetch never overwrites an
// entry written by a fetch that started after it.
type Catalog struct {
	log   *zap.Logger
	store iap.Storefront

	mu         sync.RWMutex
	entries    map[string]*entry
	generation uint64
}

func New(log *zap.Logger, store iap.Storefront) *Catalog {
	return &Catalog{
		log:     log,
		store:   store,
		entries: map[string]*entry{},
	}
}

// Fetch looks up ids with the storefront and caches every product it
// returns. Requested ids the storefront doesn't know about are left out of
// both the result and the cache. For an id a newer fetch already wrote, the
// newer cached product is returned.
func (c *Catalog) Fetch(ctx context.Context, ids []string) ([]iap.Product, error) {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	requested := dedupe(ids)

	storeProducts, err := c.store.LookupProducts(ctx, requested)
	if err != nil {
		c.log.Warn("Failed to lookup products", zap.Strings("product_ids", requested), zap.Error(err))
		return nil, iap.NewServiceError("lookup products", err)
	}

	products := make([]iap.Product, 0, len(storeProducts))

	c.mu.Lock()
	for _, sp := range storeProducts {
		if existing, ok := c.entries[sp.ID]; ok && existing.generation > generation {
			c.log.Debug("Skipping superseded product", zap.String("product_id", sp.ID))
			products = append(products, existing.product)
			continue
		}

		product := iap.NewProduct(sp)
		products = append(products, product)
		c.entries[sp.ID] = &entry{
			product:    product,
			handle:     sp,
			generation: generation,
		}
	}
	c.mu.Unlock()

	c.log.Debug("Fetched products", zap.Int("requested", len(requested)), zap.Int("returned", len(products)))

	return products, nil
}

func (c *Catalog) Lookup(id string) (iap.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return iap.Product{}, false
	}
	return e.product, true
}

// Handle returns the storefront handle to submit a purchase of id against.
func (c *Catalog) Handle(id string) (*iap.StoreProduct, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// List returns every cached product, ordered by ID.
func (c *Catalog) List() []iap.Product {
	c.mu.RLock()
	products := make([]iap.Product, 0, len(c.entries))
	for _, e := range c.entries {
		products = append(products, e.product)
	}
	c.mu.RUnlock()

	slices.SortFunc(products, func(a, b iap.Product) int {
		return strings.Compare(a.ID, b.ID)
	})
	return products
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	deduped := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return deduped
}
