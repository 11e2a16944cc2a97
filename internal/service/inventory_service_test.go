package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleBelowThresholdOpensOneReorderAndReceiptRestocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "100", quantity: 20, point: 8, reorder: 20})

	_, err := env.sell(ctx, product.ID, 13)
	require.NoError(t, err)
	assert.Equal(t, 7, env.quantity(t, product.ID))

	open := env.openReorders(t, product.ID)
	require.Len(t, open, 1)
	assert.Equal(t, models.ReorderStatusPending, open[0].Status)
	assert.Equal(t, 20, open[0].QuantityRequested)

	_, err = env.sell(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, env.quantity(t, product.ID))
	require.Len(t, env.openReorders(t, product.ID), 1)

	ordered, err := env.inventory.TransitionReorder(ctx, open[0].ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)
	assert.Equal(t, models.ReorderStatusOrdered, ordered.Status)
	assert.NotNil(t, ordered.DateOrdered)

	received, err := env.inventory.TransitionReorder(ctx, open[0].ID, models.ReorderActionMarkReceived, TransitionPayload{
		ActualQuantity: 18,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReorderStatusReceived, received.Status)
	require.NotNil(t, received.QuantityReceived)
	assert.Equal(t, 18, *received.QuantityReceived)
	assert.NotNil(t, received.DateFulfilled)

	assert.Equal(t, 24, env.quantity(t, product.ID))
	assert.Empty(t, env.openReorders(t, product.ID))

	history, err := env.inventory.ListOpenReorderRequests(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, history)

	txns, err := env.inventory.ListProductTransactions(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, txns, 4)
	last := txns[3]
	assert.Equal(t, models.TransactionTypePurchase, last.Type)
	require.NotNil(t, last.ReorderID)
	assert.Equal(t, open[0].ID, *last.ReorderID)
	assert.Equal(t, 18, last.Items[0].Quantity)

	result, err := env.inventory.Reconcile(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, 24, result.ReplayedQuantity)
}

func TestInactiveLineRejectsWholeTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createProduct(t, fixture{upc: "200", quantity: 10, point: 2, reorder: 5})
	second := env.createProduct(t, fixture{upc: "201", quantity: 10, point: 2, reorder: 5})

	_, err := env.catalog.Deactivate(ctx, second.ID)
	require.NoError(t, err)
	env.events.reset()

	_, err = env.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type: models.TransactionTypeSale,
		Items: []LineItemRequest{
			{ProductID: first.ID, Quantity: 3},
			{ProductID: second.ID, Quantity: 3},
		},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	assert.Equal(t, 10, env.quantity(t, first.ID))
	assert.Equal(t, 10, env.quantity(t, second.ID))
	assert.Empty(t, env.events.transactions)
	assert.Empty(t, env.events.changes)
}

func TestRecordTransactionValidation(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, fixture{upc: "300", quantity: 10, point: 2, reorder: 5})

	tests := []struct {
		name string
		req  RecordTransactionRequest
	}{
		{"unknown type", RecordTransactionRequest{Type: "RETURN", Items: []LineItemRequest{{ProductID: product.ID, Quantity: 1}}}},
		{"no items", RecordTransactionRequest{Type: models.TransactionTypeSale}},
		{"zero sale", RecordTransactionRequest{Type: models.TransactionTypeSale, Items: []LineItemRequest{{ProductID: product.ID, Quantity: 0}}}},
		{"negative sale", RecordTransactionRequest{Type: models.TransactionTypeSale, Items: []LineItemRequest{{ProductID: product.ID, Quantity: -2}}}},
		{"negative purchase", RecordTransactionRequest{Type: models.TransactionTypePurchase, Items: []LineItemRequest{{ProductID: product.ID, Quantity: -2}}}},
		{"zero adjustment", RecordTransactionRequest{Type: models.TransactionTypeAdjustment, Items: []LineItemRequest{{ProductID: product.ID, Quantity: 0}}}},
		{"unknown product", RecordTransactionRequest{Type: models.TransactionTypeSale, Items: []LineItemRequest{{ProductID: 9999, Quantity: 1}}}},
		{"override on sale", RecordTransactionRequest{Type: models.TransactionTypeSale, Override: true, Items: []LineItemRequest{{ProductID: product.ID, Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.inventory.RecordTransaction(context.Background(), &req)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err), "got %v", err)
			assert.Equal(t, 10, env.quantity(t, product.ID))
		})
	}
}

func TestSaleBeyondStockIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "400", quantity: 5, point: 1, reorder: 5})

	_, err := env.sell(ctx, product.ID, 6)
	var insufficient *models.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 6, insufficient.Requested)

	assert.Equal(t, 5, env.quantity(t, product.ID))
	assert.Empty(t, env.openReorders(t, product.ID))
}

func TestOverrideAdjustmentClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "500", quantity: 5, point: 1, reorder: 5})

	_, err := env.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type:  models.TransactionTypeAdjustment,
		Items: []LineItemRequest{{ProductID: product.ID, Quantity: -8}},
	})
	assert.True(t, models.IsInsufficientStock(err))

	txn, err := env.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type:     models.TransactionTypeAdjustment,
		Override: true,
		Notes:    "shrinkage",
		Items:    []LineItemRequest{{ProductID: product.ID, Quantity: -8}},
	})
	require.NoError(t, err)
	require.Len(t, txn.Items, 1)
	assert.Equal(t, -5, txn.Items[0].Quantity)
	assert.Equal(t, 0, env.quantity(t, product.ID))

	// nothing left to remove
	_, err = env.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type:     models.TransactionTypeAdjustment,
		Override: true,
		Items:    []LineItemRequest{{ProductID: product.ID, Quantity: -1}},
	})
	assert.True(t, models.IsValidation(err))

	result, err := env.inventory.Reconcile(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Len(t, env.openReorders(t, product.ID), 1)
}

func TestMultiLineTransactionOnSameProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "550", quantity: 10, point: 6, reorder: 5})

	txn, err := env.inventory.RecordTransaction(ctx, &RecordTransactionRequest{
		Type: models.TransactionTypeSale,
		Items: []LineItemRequest{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 2, UnitPrice: decimalPtr("1.99")},
		},
	})
	require.NoError(t, err)
	require.Len(t, txn.Items, 2)
	assert.True(t, txn.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, txn.Items[1].UnitPrice.Equal(decimal.RequireFromString("1.99")))

	assert.Equal(t, 5, env.quantity(t, product.ID))
	assert.Len(t, env.openReorders(t, product.ID), 1)
}

func TestConcurrentSalesOpenAtMostOneReorder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "600", quantity: 60, point: 30, reorder: 40})

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.sell(ctx, product.ID, 1); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures)
	assert.Equal(t, 10, env.quantity(t, product.ID))
	assert.Len(t, env.openReorders(t, product.ID), 1)

	result, err := env.inventory.Reconcile(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "650", quantity: 10, point: 0, reorder: 10})

	var wg sync.WaitGroup
	var sold, rejected int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.sell(ctx, product.ID, 1)
			switch {
			case err == nil:
				atomic.AddInt32(&sold, 1)
			case models.IsInsufficientStock(err):
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), sold)
	assert.Equal(t, int32(15), rejected)
	assert.Equal(t, 0, env.quantity(t, product.ID))
}

func TestConcurrentTransitionsWithSameVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "700", quantity: 3, point: 5, reorder: 10})

	open := env.openReorders(t, product.ID)
	require.Len(t, open, 1)
	version := open[0].Version

	var wg sync.WaitGroup
	var succeeded, conflicts int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.inventory.TransitionReorder(ctx, open[0].ID, models.ReorderActionMarkOrdered, TransitionPayload{
				ExpectedVersion: version,
			})
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case models.IsConflict(err), models.IsInvalidTransition(err):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(7), conflicts)

	req, err := env.inventory.GetReorder(ctx, open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReorderStatusOrdered, req.Status)
	assert.Equal(t, version+1, req.Version)
}

func TestStaleVersionIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "750", quantity: 3, point: 5, reorder: 10})
	open := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)

	_, err = env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionCancel, TransitionPayload{
		Reason:          "supplier out of stock",
		ExpectedVersion: open.Version,
	})
	assert.True(t, models.IsConflict(err))

	req, err := env.inventory.GetReorder(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReorderStatusOrdered, req.Status)
}

func TestConcurrentReceiptsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "800", quantity: 2, point: 5, reorder: 10})
	open := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkReceived, TransitionPayload{
				ActualQuantity: 10,
			})
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			assert.True(t, models.IsConflict(err) || models.IsInvalidTransition(err), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, 12, env.quantity(t, product.ID))

	txns, err := env.inventory.ListProductTransactions(ctx, product.ID)
	require.NoError(t, err)
	purchases := 0
	for _, txn := range txns {
		if txn.Type == models.TransactionTypePurchase {
			purchases++
		}
	}
	assert.Equal(t, 1, purchases)
}

func TestTerminalRequestsRejectEveryAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "900", quantity: 1, point: 5, reorder: 10})
	open := env.openReorders(t, product.ID)[0]

	canceled, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionCancel, TransitionPayload{
		Reason: "duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReorderStatusCanceled, canceled.Status)
	assert.Equal(t, "duplicate", canceled.CancelReason)

	actions := []struct {
		action  models.ReorderAction
		payload TransitionPayload
	}{
		{models.ReorderActionMarkOrdered, TransitionPayload{}},
		{models.ReorderActionMarkReceived, TransitionPayload{ActualQuantity: 5}},
		{models.ReorderActionCancel, TransitionPayload{Reason: "again"}},
		{models.ReorderActionCancel, TransitionPayload{}},
		{models.ReorderActionMarkReceived, TransitionPayload{}},
	}
	for _, a := range actions {
		_, err := env.inventory.TransitionReorder(ctx, open.ID, a.action, a.payload)
		assert.True(t, models.IsInvalidTransition(err), "%s: got %v", a.action, err)
	}

	after, err := env.inventory.GetReorder(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, canceled.Version, after.Version)
	assert.Equal(t, 1, env.quantity(t, product.ID))
}

func TestPendingCannotBeReceived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "950", quantity: 1, point: 5, reorder: 10})
	open := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkReceived, TransitionPayload{ActualQuantity: 10})
	assert.True(t, models.IsInvalidTransition(err))
	assert.Equal(t, 1, env.quantity(t, product.ID))
}

func TestTransitionPayloadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "960", quantity: 1, point: 5, reorder: 10})
	open := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionCancel, TransitionPayload{Reason: "  "})
	assert.True(t, models.IsValidation(err))

	_, err = env.inventory.TransitionReorder(ctx, open.ID, "SHIP", TransitionPayload{})
	assert.True(t, models.IsValidation(err))

	_, err = env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkReceived, TransitionPayload{ActualQuantity: 0})
	assert.True(t, models.IsValidation(err))

	_, err = env.inventory.TransitionReorder(ctx, 424242, models.ReorderActionMarkOrdered, TransitionPayload{})
	assert.True(t, models.IsNotFound(err))
}

func TestCanceledRequestAllowsNewOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "970", quantity: 5, point: 5, reorder: 10})
	first := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, first.ID, models.ReorderActionCancel, TransitionPayload{Reason: "wrong supplier"})
	require.NoError(t, err)
	assert.Empty(t, env.openReorders(t, product.ID))

	_, err = env.sell(ctx, product.ID, 1)
	require.NoError(t, err)

	open := env.openReorders(t, product.ID)
	require.Len(t, open, 1)
	assert.NotEqual(t, first.ID, open[0].ID)
}

func TestPartialReceiptStillLowOpensFreshRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "980", quantity: 2, point: 10, reorder: 20})
	first := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, first.ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)
	_, err = env.inventory.TransitionReorder(ctx, first.ID, models.ReorderActionMarkReceived, TransitionPayload{ActualQuantity: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, env.quantity(t, product.ID))
	open := env.openReorders(t, product.ID)
	require.Len(t, open, 1)
	assert.NotEqual(t, first.ID, open[0].ID)
	assert.Equal(t, models.ReorderStatusPending, open[0].Status)
}

func TestReceiptForDeactivatedProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "990", quantity: 1, point: 10, reorder: 5})
	open := env.openReorders(t, product.ID)[0]

	_, err := env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)
	_, err = env.catalog.Deactivate(ctx, product.ID)
	require.NoError(t, err)

	_, err = env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkReceived, TransitionPayload{ActualQuantity: 5})
	require.NoError(t, err)

	assert.Equal(t, 6, env.quantity(t, product.ID))
	assert.Empty(t, env.openReorders(t, product.ID))
}

func TestManualReorder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "1000", quantity: 50, point: 5, reorder: 12})

	created, err := env.inventory.CreateReorder(ctx, &CreateReorderRequest{ProductID: product.ID})
	require.NoError(t, err)
	assert.Equal(t, 12, created.QuantityRequested)
	assert.Equal(t, models.ReorderStatusPending, created.Status)

	_, err = env.inventory.CreateReorder(ctx, &CreateReorderRequest{ProductID: product.ID, Quantity: 30})
	assert.True(t, models.IsConflict(err))

	_, err = env.inventory.CreateReorder(ctx, &CreateReorderRequest{ProductID: product.ID, Quantity: -1})
	assert.True(t, models.IsValidation(err))

	_, err = env.inventory.CreateReorder(ctx, &CreateReorderRequest{ProductID: 31337})
	assert.True(t, models.IsNotFound(err))

	assert.Len(t, env.openReorders(t, product.ID), 1)
}

func TestIdempotencyKeyReturnsOriginalTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "1100", quantity: 10, point: 1, reorder: 5})

	req := func() *RecordTransactionRequest {
		return &RecordTransactionRequest{
			Type:           models.TransactionTypeSale,
			IdempotencyKey: "till-7-receipt-42",
			Items:          []LineItemRequest{{ProductID: product.ID, Quantity: 2}},
		}
	}

	first, err := env.inventory.RecordTransaction(ctx, req())
	require.NoError(t, err)
	second, err := env.inventory.RecordTransaction(ctx, req())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// the store is authoritative when the cache has forgotten the key
	env.cache.mu.Lock()
	delete(env.cache.keys, "till-7-receipt-42")
	env.cache.mu.Unlock()

	third, err := env.inventory.RecordTransaction(ctx, req())
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	assert.Equal(t, 8, env.quantity(t, product.ID))
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "1200", quantity: 10, point: 5, reorder: 10})
	env.events.reset()

	_, err := env.sell(ctx, product.ID, 20)
	require.Error(t, err)
	assert.Empty(t, env.events.transactions)
	assert.Empty(t, env.events.changes)
	assert.Empty(t, env.events.reorders)

	_, err = env.sell(ctx, product.ID, 6)
	require.NoError(t, err)
	require.Len(t, env.events.transactions, 1)
	require.Len(t, env.events.changes, 1)
	change := env.events.changes[0]
	assert.Equal(t, -6, change.Delta)
	assert.Equal(t, 10, change.PreviousQuantity)
	assert.Equal(t, 4, change.NewQuantity)
	assert.Equal(t, []string{models.EventTypeReorderCreated}, env.events.reorderEventTypes())

	open := env.openReorders(t, product.ID)[0]
	_, err = env.inventory.TransitionReorder(ctx, open.ID, models.ReorderActionMarkOrdered, TransitionPayload{})
	require.NoError(t, err)

	require.Len(t, env.events.ordered, 1)
	assert.Equal(t, "1200", env.events.ordered[0].UPC)
	assert.Equal(t, 10, env.events.ordered[0].QuantityRequested)
	assert.Equal(t, []string{models.EventTypeReorderCreated, models.EventTypeReorderOrdered}, env.events.reorderEventTypes())
}

func TestGetProductReadsThroughCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.createProduct(t, fixture{upc: "1300", quantity: 10, point: 1, reorder: 5})

	got, err := env.inventory.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentQuantity)

	cached, ok, _ := env.cache.GetProduct(ctx, product.ID)
	require.True(t, ok)
	assert.Equal(t, 10, cached.CurrentQuantity)

	_, err = env.sell(ctx, product.ID, 4)
	require.NoError(t, err)
	_, ok, _ = env.cache.GetProduct(ctx, product.ID)
	assert.False(t, ok, "sale invalidates the cached snapshot")

	got, err = env.inventory.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.CurrentQuantity)

	_, err = env.inventory.GetProduct(ctx, 5555)
	assert.True(t, models.IsNotFound(err))
}

// slowFillCache runs beforeSet once, between the store read and the cache write
type slowFillCache struct {
	*mapCache
	beforeSet func()
}

func (c *slowFillCache) SetProduct(ctx context.Context, product *models.Product) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	return c.mapCache.SetProduct(ctx, product)
}

func TestGetProductDiscardsFillRacingACommit(t *testing.T) {
	ctx := context.Background()
	cache := &slowFillCache{mapCache: newMapCache()}
	inventory := NewInventoryService(store.NewMemoryStore(), cache, cache, nil, nil, time.Hour)
	catalog := NewCatalogService(inventory)

	product, err := catalog.CreateProduct(ctx, &CreateProductRequest{
		UPC: "1350", Name: "Sparkling Water", InitialQuantity: 20, ReorderPoint: 1, ReorderQuantity: 5,
	})
	require.NoError(t, err)

	cache.beforeSet = func() {
		_, err := inventory.RecordTransaction(ctx, &RecordTransactionRequest{
			Type:  models.TransactionTypeSale,
			Items: []LineItemRequest{{ProductID: product.ID, Quantity: 5}},
		})
		require.NoError(t, err)
	}

	// this read saw the pre-sale row; it must not stay cached
	got, err := inventory.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.CurrentQuantity)

	_, ok, _ := cache.GetProduct(ctx, product.ID)
	assert.False(t, ok)

	got, err = inventory.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.CurrentQuantity)
}

func TestOpenReorderReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	low := env.createProduct(t, fixture{upc: "1400", quantity: 1, point: 5, reorder: 4, price: "3.25"})
	env.createProduct(t, fixture{upc: "1401", quantity: 50, point: 5, reorder: 4})

	lines, err := env.inventory.OpenReorderReport(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, low.ID, lines[0].ProductID)
	assert.Equal(t, "1400", lines[0].UPC)
	assert.Equal(t, 1, lines[0].CurrentQuantity)
	assert.True(t, lines[0].EstimatedCost.Equal(decimal.RequireFromString("13.00")))
}

func TestReconcileUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.inventory.Reconcile(context.Background(), 77)
	assert.True(t, models.IsNotFound(err))
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
