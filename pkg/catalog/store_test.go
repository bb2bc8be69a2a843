package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/pkg/failure"
	"cafe/pkg/state"
)

type fakeRemote struct {
	mu       sync.Mutex
	products []Product
	err      error
	calls    int
	nextID   int
}

func (f *fakeRemote) ListProducts(ctx context.Context) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return cloneProducts(f.products), nil
}

func (f *fakeRemote) GetProduct(ctx context.Context, id string) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Product{}, f.err
	}
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, failure.Rejection(404, "Product not found")
}

func (f *fakeRemote) CreateProduct(ctx context.Context, p Product) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Product{}, f.err
	}
	f.nextID++
	p.ID = "new-" + string(rune('0'+f.nextID))
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeRemote) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Product{}, f.err
	}
	return p, nil
}

func (f *fakeRemote) DeleteProduct(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func product(id, name, category string, price int64) Product {
	return Product{ID: id, Name: name, Category: category, Price: decimal.NewFromInt(price)}
}

func seeded(t *testing.T, remote *fakeRemote) *Store {
	t.Helper()
	store := NewStore(remote, nil)
	t.Cleanup(store.Shutdown)
	_, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	return store
}

func TestFetchAllDerivesCategoriesInFirstSeenOrder(t *testing.T) {
	remote := &fakeRemote{products: []Product{
		product("1", "Latte", "Coffee", 150),
		product("2", "Croissant", "Bakery", 90),
		product("3", "Espresso", "Coffee", 100),
		product("4", "Green tea", "Tea", 80),
	}}
	store := seeded(t, remote)

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Products, 4)
	assert.Equal(t, []string{"Coffee", "Bakery", "Tea"}, snap.Categories)
	assert.Equal(t, state.PhaseSucceeded, snap.Ops.Phase(OpFetch))
}

func TestFetchAllReplacesWholesale(t *testing.T) {
	remote := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	store := seeded(t, remote)

	remote.products = []Product{product("9", "Cake", "Desserts", 200)}
	_, err := store.FetchAll(context.Background())
	require.NoError(t, err)

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "9", snap.Products[0].ID)
	assert.Equal(t, []string{"Desserts"}, snap.Categories)
}

func TestFetchAllFailureKeepsCache(t *testing.T) {
	remote := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	store := seeded(t, remote)

	remote.err = failure.Transport(errors.New("connection refused"))
	_, err := store.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, failure.IsTransport(err))

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Products, 1)
	assert.Equal(t, "Failed to fetch products", snap.Error)
	assert.Equal(t, state.PhaseFailed, snap.Ops.Phase(OpFetch))

	require.NoError(t, store.ClearError(context.Background()))
	snap, err = store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Error)
}

func TestCreateAppendsProductAndNewCategory(t *testing.T) {
	remote := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	store := seeded(t, remote)
	ctx := context.Background()

	_, err := store.Create(ctx, Product{Name: "Mocha", Category: "Coffee", Price: decimal.NewFromInt(170)})
	require.NoError(t, err)
	created, err := store.Create(ctx, Product{Name: " Brownie ", Category: "Desserts", Price: decimal.NewFromInt(120)})
	require.NoError(t, err)
	assert.Equal(t, "Brownie", created.Name)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 3)
	assert.Equal(t, []string{"Coffee", "Desserts"}, snap.Categories)
}

func TestCreateValidationSkipsRemote(t *testing.T) {
	remote := &fakeRemote{}
	store := NewStore(remote, nil)
	defer store.Shutdown()
	ctx := context.Background()

	_, err := store.Create(ctx, Product{Name: "", Category: "Coffee"})
	assert.ErrorIs(t, err, ErrInvalidProduct)
	_, err = store.Create(ctx, Product{Name: "Tea", Category: "Tea", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrNegativePrice)
	assert.Equal(t, 0, remote.calls)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "price must not be negative", snap.Error)
}

func TestUpdateReplacesByIDAndKeepsCategories(t *testing.T) {
	remote := &fakeRemote{products: []Product{
		product("1", "Latte", "Coffee", 150),
		product("2", "Cake", "Desserts", 200),
	}}
	store := seeded(t, remote)
	ctx := context.Background()

	_, err := store.Update(ctx, product("2", "Cake", "Bakery", 210))
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bakery", snap.Products[1].Category)
	assert.True(t, snap.Products[1].Price.Equal(decimal.NewFromInt(210)))
	assert.Equal(t, []string{"Coffee", "Desserts"}, snap.Categories, "categories are additive-only")
	require.NotNil(t, snap.Current)
	assert.Equal(t, "2", snap.Current.ID)
}

func TestDeleteRemovesOnlyAfterConfirmation(t *testing.T) {
	remote := &fakeRemote{products: []Product{
		product("1", "Latte", "Coffee", 150),
		product("2", "Cake", "Desserts", 200),
	}}
	store := seeded(t, remote)
	ctx := context.Background()

	remote.err = failure.Rejection(404, "Product not found")
	err := store.Delete(ctx, "2")
	require.Error(t, err)
	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 2)
	assert.Equal(t, "Product not found", snap.Error)

	remote.err = nil
	require.NoError(t, store.Delete(ctx, "2"))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "1", snap.Products[0].ID)
	assert.Equal(t, []string{"Coffee", "Desserts"}, snap.Categories)
}

func TestGetSetsCurrent(t *testing.T) {
	remote := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	store := seeded(t, remote)
	ctx := context.Background()

	p, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Latte", p.Name)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Current)

	require.NoError(t, store.ClearCurrent(ctx))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Current)
}

func TestShutdownIgnoresLateResults(t *testing.T) {
	remote := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	store := NewStore(remote, nil)
	store.Shutdown()

	_, err := store.FetchAll(context.Background())
	assert.ErrorIs(t, err, state.ErrClosed)
}

func TestFilter(t *testing.T) {
	products := []Product{
		{ID: "1", Name: "Latte", Category: "Coffee", Description: "milk and espresso"},
		{ID: "2", Name: "Croissant", Category: "Bakery"},
		{ID: "3", Name: "Espresso", Category: "Coffee"},
	}
	assert.Len(t, Filter(products, FilterAll, ""), 3)
	assert.Len(t, Filter(products, "Coffee", ""), 2)
	assert.Len(t, Filter(products, "", "ESPRESSO"), 2)
	assert.Len(t, Filter(products, "Bakery", "latte"), 0)
}

// cancellingRemote cancels the caller's context after the remote answered.
type cancellingRemote struct {
	*fakeRemote
	cancel context.CancelFunc
}

func (r *cancellingRemote) CreateProduct(ctx context.Context, p Product) (Product, error) {
	defer r.cancel()
	return r.fakeRemote.CreateProduct(ctx, p)
}

func (r *cancellingRemote) DeleteProduct(ctx context.Context, id string) error {
	defer r.cancel()
	return r.fakeRemote.DeleteProduct(ctx, id)
}

func TestConfirmedWritesSurviveCallerCancellation(t *testing.T) {
	fake := &fakeRemote{products: []Product{product("1", "Latte", "Coffee", 150)}}
	remote := &cancellingRemote{fakeRemote: fake}
	store := NewStore(remote, nil)
	t.Cleanup(store.Shutdown)
	_, err := store.FetchAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	remote.cancel = cancel
	created, err := store.Create(ctx, product("", "Scone", "Pastry", 90))
	require.NoError(t, err)

	ctx, cancel = context.WithCancel(context.Background())
	remote.cancel = cancel
	require.NoError(t, store.Delete(ctx, "1"))

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, created.ID, snap.Products[0].ID)
	assert.Equal(t, state.PhaseSucceeded, snap.Ops.Phase(OpCreate))
	assert.Equal(t, state.PhaseSucceeded, snap.Ops.Phase(OpDelete))
}
