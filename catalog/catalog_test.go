package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/iap/memory"
)

func TestCatalog_Fetch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	store.AddProduct("id.bundle.sub", "Monthly", "Monthly subscription", "4.99", "autoRenewable")
	store.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")

	c := New(zaptest.NewLogger(t), store)

	_, ok := c.Lookup("id.bundle.sub")
	require.False(t, ok)

	products, err := c.Fetch(ctx, []string{"id.bundle.sub", "id.bundle.sub", "missing"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "$4.99", products[0].DisplayPrice)
	require.Equal(t, iap.ProductTypeAutoRenewable, products[0].Type)

	cached, ok := c.Lookup("id.bundle.sub")
	require.True(t, ok)
	require.True(t, cached.Equal(products[0]))

	handle, ok := c.Handle("id.bundle.sub")
	require.True(t, ok)
	require.Equal(t, "id.bundle.sub", handle.ID)

	_, ok = c.Lookup("missing")
	require.False(t, ok)
	_, ok = c.Handle("missing")
	require.False(t, ok)

	_, err = c.Fetch(ctx, []string{"pro"})
	require.NoError(t, err)

	all := c.List()
	require.Len(t, all, 2)
	require.Equal(t, "id.bundle.sub", all[0].ID)
	require.Equal(t, "pro", all[1].ID)
}

func TestCatalog_FetchFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	store.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")

	c := New(zaptest.NewLogger(t), store)
	_, err := c.Fetch(ctx, []string{"pro"})
	require.NoError(t, err)

	store.AddProduct("pro", "Pro", "Unlock everything", "19.99", "nonConsumable")
	store.SetError(memory.OpLookup, errors.New("network unreachable"))

	_, err = c.Fetch(ctx, []string{"pro"})
	require.ErrorIs(t, err, iap.ErrService)

	cached, ok := c.Lookup("pro")
	require.True(t, ok)
	require.True(t, cached.Price.Equal(decimal.RequireFromString("9.99")))
	require.Len(t, c.List(), 1)
}

func TestCatalog_ConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	store := &scriptedStorefront{
		InMemoryStorefront: memory.NewInMemory(),
		responses:          make(chan []*iap.StoreProduct),
		called:             make(chan struct{}, 2),
	}
	c := New(zaptest.NewLogger(t), store)

	stale := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, []string{"pro"})
		stale <- err
	}()
	<-store.called

	fresh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, []string{"pro"})
		fresh <- err
	}()
	<-store.called

	// Reads never wait on in-flight fetches.
	_, ok := c.Lookup("pro")
	require.False(t, ok)
	require.Empty(t, c.List())

	// Either fetch may pick up either response. The entry must end up owned
	// by the newer fetch.
	store.responses <- []*iap.StoreProduct{product("pro", "1.99")}
	store.responses <- []*iap.StoreProduct{product("pro", "1.99")}
	require.NoError(t, <-stale)
	require.NoError(t, <-fresh)

	cached, ok := c.Lookup("pro")
	require.True(t, ok)
	require.True(t, cached.Price.Equal(decimal.RequireFromString("1.99")))

	c.mu.RLock()
	require.EqualValues(t, 2, c.entries["pro"].generation)
	c.mu.RUnlock()
}

func TestCatalog_OlderFetchDoesNotOverwrite(t *testing.T) {
	c := New(zaptest.NewLogger(t), memory.NewInMemory())

	c.mu.Lock()
	c.generation = 5
	c.entries["pro"] = &entry{product: iap.NewProduct(product("pro", "2.99")), handle: product("pro", "2.99"), generation: 5}
	c.mu.Unlock()

	store := &scriptedStorefront{
		InMemoryStorefront: memory.NewInMemory(),
		responses:          make(chan []*iap.StoreProduct, 1),
		called:             make(chan struct{}, 1),
	}
	c.store = store

	// Simulate a fetch that started before generation 5 was written.
	c.mu.Lock()
	c.generation = 3
	c.mu.Unlock()

	store.responses <- []*iap.StoreProduct{product("pro", "0.99")}
	products, err := c.Fetch(context.Background(), []string{"pro"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.True(t, products[0].Price.Equal(decimal.RequireFromString("2.99")))

	cached, ok := c.Lookup("pro")
	require.True(t, ok)
	require.True(t, cached.Price.Equal(decimal.RequireFromString("2.99")))
	require.True(t, products[0].Equal(cached))
}

type scriptedStorefront struct {
	*memory.InMemoryStorefront

	responses chan []*iap.StoreProduct
	called    chan struct{}
}

func (s *scriptedStorefront) LookupProducts(ctx context.Context, _ []string) ([]*iap.StoreProduct, error) {
	s.called <- struct{}{}
	select {
	case products := <-s.responses:
		return products, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
		return nil, errors.New("no scripted response")
	}
}

func product(id, price string) *iap.StoreProduct {
	return &iap.StoreProduct{
		ID:           id,
		DisplayName:  id,
		Price:        decimal.RequireFromString(price),
		DisplayPrice: "$" + price,
		Kind:         "nonConsumable",
	}
}
