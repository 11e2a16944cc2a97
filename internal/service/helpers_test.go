package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures every published event
type recordingPublisher struct {
	mu           sync.Mutex
	transactions []*models.TransactionRecordedEvent
	changes      []*models.QuantityChangedEvent
	reorders     []*models.ReorderEvent
	ordered      []*models.ReorderOrderedEvent
}

func (p *recordingPublisher) PublishTransactionRecorded(ctx context.Context, event *models.TransactionRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, event)
	return nil
}

func (p *recordingPublisher) PublishQuantityChanged(ctx context.Context, event *models.QuantityChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, event)
	return nil
}

func (p *recordingPublisher) PublishReorderEvent(ctx context.Context, event *models.ReorderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reorders = append(p.reorders, event)
	return nil
}

func (p *recordingPublisher) NotifyReorderOrdered(ctx context.Context, event *models.ReorderOrderedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ordered = append(p.ordered, event)
	return nil
}

func (p *recordingPublisher) reorderEventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.reorders))
	for _, e := range p.reorders {
		types = append(types, e.EventType)
	}
	return types
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = nil
	p.changes = nil
	p.reorders = nil
	p.ordered = nil
}

// mapCache is an in-process ProductCache and IdempotencyCache
type mapCache struct {
	mu          sync.Mutex
	products    map[int64]models.Product
	keys        map[string]int64
	invalidated []int64
}

func newMapCache() *mapCache {
	return &mapCache{
		products: make(map[int64]models.Product),
		keys:     make(map[string]int64),
	}
}

func (c *mapCache) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *mapCache) SetProduct(ctx context.Context, product *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = *product
	return nil
}

func (c *mapCache) InvalidateProducts(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.products, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

func (c *mapCache) GetTransactionID(ctx context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.keys[key]
	return id, ok, nil
}

func (c *mapCache) SetTransactionID(ctx context.Context, key string, id int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; !ok {
		c.keys[key] = id
	}
	return nil
}

type testEnv struct {
	repo      *store.MemoryStore
	inventory *InventoryService
	catalog   *CatalogService
	events    *recordingPublisher
	cache     *mapCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := store.NewMemoryStore()
	events := &recordingPublisher{}
	cache := newMapCache()
	inventory := NewInventoryService(repo, cache, cache, events, events, time.Hour)

	return &testEnv{
		repo:      repo,
		inventory: inventory,
		catalog:   NewCatalogService(inventory),
		events:    events,
		cache:     cache,
	}
}

type fixture struct {
	upc      string
	quantity int
	point    int
	reorder  int
	price    string
}

func (e *testEnv) createProduct(t *testing.T, f fixture) *models.Product {
	t.Helper()

	price := f.price
	if price == "" {
		price = "2.50"
	}
	product, err := e.catalog.CreateProduct(context.Background(), &CreateProductRequest{
		UPC:             f.upc,
		Name:            "Product " + f.upc,
		InitialQuantity: f.quantity,
		ReorderPoint:    f.point,
		ReorderQuantity: f.reorder,
		UnitPrice:       decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return product
}

func (e *testEnv) quantity(t *testing.T, productID int64) int {
	t.Helper()
	p, err := e.repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.CurrentQuantity
}

func (e *testEnv) openReorders(t *testing.T, productID int64) []models.ReorderRequest {
	t.Helper()
	reqs, err := e.inventory.ListOpenReorderRequests(context.Background(), &productID)
	require.NoError(t, err)
	return reqs
}

func (e *testEnv) sell(ctx context.Context, productID int64, quantity int) (*models.Transaction, error) {
	return e.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type:  models.TransactionTypeSale,
		Items: []LineItemRequest{{ProductID: productID, Quantity: quantity}},
	})
}
